package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rain2recharge/r2r/internal/api"
	"github.com/rain2recharge/r2r/internal/assessment"
	"github.com/rain2recharge/r2r/internal/assistant"
	"github.com/rain2recharge/r2r/internal/config"
	"github.com/rain2recharge/r2r/internal/geocoding"
)

// --- assessment ---

var assessmentCmd = &cobra.Command{
	Use:   "assessment",
	Short: "Drive the assessment wizard",
}

func assessmentPath(cmd *cobra.Command, suffix string) string {
	id, _ := cmd.Flags().GetString("id")
	return "/assessments/" + url.PathEscape(id) + suffix
}

func printState(cmd *cobra.Command, s assessment.State) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(s)
	}

	printStep("Step %d of %d: %s", s.CurrentStep, assessment.StepResults, s.StepName)
	r := s.Record
	if r.Location != nil {
		if c := r.Location.Coordinates; c != nil {
			printStatus("Location", "%s (%.6f, %.6f)", r.Location.Address, c.Lat, c.Lng)
		} else {
			printStatus("Location", "%s", r.Location.Address)
		}
	}
	if p := r.Property; p != nil {
		printStatus("Property", "%s, %.0f sq ft roof, %.2f acres", p.HouseType, p.RoofSizeSqFt, p.LotSizeAcres)
	}
	if r.Climate != nil && r.Climate.Loaded {
		printStatus("Climate", "loaded %s", r.Climate.Timestamp.Format("2006-01-02 15:04"))
	}
	if f := r.Feasibility; f != nil {
		printStatus("Feasibility", "score %d (%s)", f.Score, f.Rating)
		printStatus("Harvest", "%.0f gal/yr", f.HarvestGallonsYear)
		printStatus("Tank", "%d gal", f.RecommendedTankGal)
		printStatus("Payback", "%.1f years", f.PaybackYears)
	}
	return nil
}

func doState(cmd *cobra.Command, method, suffix string, body any) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.do(cmd.Context(), method, assessmentPath(cmd, suffix), body)
	if err != nil {
		return err
	}
	var state assessment.State
	if err := decodeJSON(resp, &state); err != nil {
		return err
	}
	return printState(cmd, state)
}

var assessmentShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the assessment record and current step",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doState(cmd, "GET", "", nil)
	},
}

var assessmentLocationCmd = &cobra.Command{
	Use:   "location <address>",
	Short: "Set the property address",
	Long: `Set the property address (wizard step 1).

Examples:
  r2r assessment location "123 Oak St, Austin, TX"
  r2r assessment location "123 Oak St" --lat 30.2672 --lng -97.7431`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc := assessment.Location{Address: strings.TrimSpace(strings.Join(args, " "))}
		if loc.Address == "" {
			return fmt.Errorf("address is required")
		}

		latSet, lngSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lng")
		if latSet != lngSet {
			return fmt.Errorf("--lat and --lng must be given together")
		}
		if latSet {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lng, _ := cmd.Flags().GetFloat64("lng")
			loc.Coordinates = &assessment.Coordinates{Lat: lat, Lng: lng}
		}
		return doState(cmd, "PUT", "/location", loc)
	},
}

var assessmentPropertyCmd = &cobra.Command{
	Use:   "property",
	Short: "Set property details",
	Long: `Set property details (wizard step 2).

Examples:
  r2r assessment property --type single-family --roof 2000 --lot 0.25`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		houseType, _ := cmd.Flags().GetString("type")
		roof, _ := cmd.Flags().GetFloat64("roof")
		lot, _ := cmd.Flags().GetFloat64("lot")

		details := assessment.PropertyDetails{
			HouseType:    assessment.HouseType(houseType),
			RoofSizeSqFt: roof,
			LotSizeAcres: lot,
		}
		if err := details.Validate(); err != nil {
			return err
		}
		return doState(cmd, "PUT", "/property", details)
	},
}

var assessmentAdvanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Move to the next wizard step",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doState(cmd, "POST", "/advance", nil)
	},
}

var assessmentRetreatCmd = &cobra.Command{
	Use:   "retreat",
	Short: "Move back one wizard step",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doState(cmd, "POST", "/retreat", nil)
	},
}

var assessmentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored assessments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/assessments")
		if err != nil {
			return err
		}
		var list []assessment.Listing
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Fprintln(stdout, "No assessments.")
			return nil
		}
		for _, l := range list {
			fmt.Fprintf(stdout, "%s  step %d (%s)  %s\n",
				colorize(colorBold, l.ID), l.CurrentStep, l.StepName, l.Address)
		}
		return nil
	},
}

var assessmentDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the stored assessment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), assessmentPath(cmd, ""))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		id, _ := cmd.Flags().GetString("id")
		printSuccess("Deleted assessment %s", id)
		return nil
	},
}

func init() {
	assessmentCmd.PersistentFlags().String("id", api.DefaultAssessmentID, "assessment id")
	assessmentCmd.PersistentFlags().Bool("json", false, "print the raw state as JSON")

	assessmentLocationCmd.Flags().Float64("lat", 0, "latitude")
	assessmentLocationCmd.Flags().Float64("lng", 0, "longitude")

	assessmentPropertyCmd.Flags().String("type", "", "house type (single-family, townhouse, multi-family, commercial)")
	assessmentPropertyCmd.Flags().Float64("roof", 0, "roof area in square feet")
	assessmentPropertyCmd.Flags().Float64("lot", 0, "lot size in acres")

	assessmentCmd.AddCommand(assessmentShowCmd)
	assessmentCmd.AddCommand(assessmentLocationCmd)
	assessmentCmd.AddCommand(assessmentPropertyCmd)
	assessmentCmd.AddCommand(assessmentAdvanceCmd)
	assessmentCmd.AddCommand(assessmentRetreatCmd)
	assessmentCmd.AddCommand(assessmentListCmd)
	assessmentCmd.AddCommand(assessmentDeleteCmd)
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the water-systems assistant",
}

func printMessage(m assistant.Message) {
	who := colorize(colorBold, "you")
	if m.Sender == assistant.SenderModel {
		who = colorize(colorCyan, "assistant")
	}
	fmt.Fprintf(stdout, "%s: %s\n", who, m.Text)
}

func printReply(r assistant.Reply) {
	if !r.Success {
		printWarning("assistant unavailable: %s", r.Error)
	}
	fmt.Fprintf(stdout, "%s: %s\n", colorize(colorCyan, "assistant"), r.Message)
	for _, s := range r.Suggestions {
		fmt.Fprintf(stdout, "  %s %s\n", colorize(colorYellow, "?"), s)
	}
	for _, a := range r.Attachments {
		if len(a.Options) > 0 {
			fmt.Fprintf(stdout, "  [%s] %s\n", a.Type, strings.Join(a.Options, " / "))
		} else {
			fmt.Fprintf(stdout, "  [%s]\n", a.Type)
		}
	}
}

var chatNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		assessmentID, _ := cmd.Flags().GetString("assessment")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/conversations", api.ConversationRequest{AssessmentID: assessmentID})
		if err != nil {
			return err
		}
		var conv assistant.Conversation
		if err := decodeJSON(resp, &conv); err != nil {
			return err
		}

		printSuccess("Started conversation %s", conv.ID)
		for _, m := range conv.Transcript {
			printMessage(m)
		}
		return nil
	},
}

var chatSendCmd = &cobra.Command{
	Use:   "send <conversation-id> <message>",
	Short: "Send a message and print the reply",
	Long: `Send a message and print the reply.

Examples:
  r2r chat send 3f2a... "How much does a 1500 gallon cistern cost?"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		assessmentID, _ := cmd.Flags().GetString("assessment")
		text := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/conversations/"+url.PathEscape(args[0])+"/messages", api.MessageRequest{
			Message:      text,
			AssessmentID: assessmentID,
		})
		if err != nil {
			return err
		}
		var out api.MessageResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printReply(out.Reply)
		return nil
	},
}

var chatListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/conversations?limit="+strconv.Itoa(limit))
		if err != nil {
			return err
		}
		var convs []assistant.Conversation
		if err := decodeJSON(resp, &convs); err != nil {
			return err
		}
		if len(convs) == 0 {
			fmt.Fprintln(stdout, "No conversations.")
			return nil
		}
		for _, c := range convs {
			s := assistant.Summary(c, c.CreatedAt)
			fmt.Fprintf(stdout, "%s  %s  %d turns  %s\n",
				colorize(colorBold, c.ID), c.CreatedAt.Format("2006-01-02 15:04"), s.UserTurns, s.LastMessage)
		}
		return nil
	},
}

var chatSummaryCmd = &cobra.Command{
	Use:   "summary <conversation-id>",
	Short: "Show the conversation summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/conversations/"+url.PathEscape(args[0])+"/summary")
		if err != nil {
			return err
		}
		var s assistant.ConversationSummary
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		printStatus("User turns", "%d", s.UserTurns)
		printStatus("Last message", "%s", s.LastMessage)
		printStatus("Updated", "%s", s.Timestamp.Format("2006-01-02 15:04:05"))
		return nil
	},
}

var chatClearCmd = &cobra.Command{
	Use:   "clear <conversation-id>",
	Short: "Clear the conversation and start over",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		assessmentID, _ := cmd.Flags().GetString("assessment")
		path := "/conversations/" + url.PathEscape(args[0]) + "/messages"
		if assessmentID != "" {
			path += "?assessmentId=" + url.QueryEscape(assessmentID)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), path)
		if err != nil {
			return err
		}
		var conv assistant.Conversation
		if err := decodeJSON(resp, &conv); err != nil {
			return err
		}
		printSuccess("Cleared conversation %s", conv.ID)
		for _, m := range conv.Transcript {
			printMessage(m)
		}
		return nil
	},
}

var chatDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/conversations/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted conversation %s", args[0])
		return nil
	},
}

func init() {
	chatNewCmd.Flags().String("assessment", "", "assessment id used for context and greeting")
	chatSendCmd.Flags().String("assessment", "", "assessment id used for context hints")
	chatClearCmd.Flags().String("assessment", "", "assessment id used for the new greeting")
	chatListCmd.Flags().Int("limit", 20, "maximum conversations to list")

	chatCmd.AddCommand(chatNewCmd)
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatListCmd)
	chatCmd.AddCommand(chatSummaryCmd)
	chatCmd.AddCommand(chatClearCmd)
	chatCmd.AddCommand(chatDeleteCmd)
}

// --- geocode ---

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Look up addresses and coordinates",
}

var geocodeSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search for addresses",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/geocode/search?q="+url.QueryEscape(strings.Join(args, " ")))
		if err != nil {
			return err
		}
		var out struct {
			Provider string            `json:"provider"`
			Results  []geocoding.Place `json:"results"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if len(out.Results) == 0 {
			fmt.Fprintln(stdout, "No results.")
			return nil
		}
		for _, p := range out.Results {
			fmt.Fprintf(stdout, "%s  %s\n",
				colorize(colorBold, fmt.Sprintf("%.6f, %.6f", p.Coordinates.Lat, p.Coordinates.Lng)), p.Address)
		}
		return nil
	},
}

var geocodeReverseCmd = &cobra.Command{
	Use:   "reverse <lat> <lng>",
	Short: "Find the address at coordinates",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid latitude %q", args[0])
		}
		lng, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid longitude %q", args[1])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		q := url.Values{}
		q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
		q.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
		resp, err := client.get(cmd.Context(), "/geocode/reverse?"+q.Encode())
		if err != nil {
			return err
		}
		var p geocoding.Place
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		fmt.Fprintln(stdout, p.Address)
		return nil
	},
}

func init() {
	geocodeCmd.AddCommand(geocodeSearchCmd)
	geocodeCmd.AddCommand(geocodeReverseCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
