package main

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	tracklogGRPC "github.com/BearBump/TrackLog/internal/api/tracklog_grpc"
	"github.com/BearBump/TrackLog/internal/models"
)

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func newSubmitCmd(c *cli) *cobra.Command {
	var (
		in                        models.SubmitInput
		refType, eventTime        string
		description, location     string
		stopID, externalID, actor string
		payload                   string
		lat, lng                  float64
	)
	cmd := &cobra.Command{
		Use:   "submit <referenceId> <eventType>",
		Short: "Record one tracking event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			org, err := c.org()
			if err != nil {
				return err
			}
			in.OrganizationID = org
			in.ReferenceType = models.ReferenceType(refType)
			in.ReferenceID = args[0]
			in.EventType = args[1]
			in.Description = optional(description)
			in.LocationText = optional(location)
			in.StopID = optional(stopID)
			in.ExternalEventID = optional(externalID)
			in.ActorID = optional(actor)
			if eventTime != "" {
				t, err := time.Parse(time.RFC3339, eventTime)
				if err != nil {
					return errors.Wrap(err, "--time")
				}
				in.EventTime = t
			}
			if cmd.Flags().Changed("lat") {
				in.Latitude = &lat
			}
			if cmd.Flags().Changed("lng") {
				in.Longitude = &lng
			}
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return errors.New("--payload is not valid JSON")
				}
				in.Payload = json.RawMessage(payload)
			}

			ctx, cancel := c.context(cmd.Context())
			defer cancel()
			resp, err := c.client.SubmitEvent(ctx, &tracklogGRPC.SubmitEventRequest{Event: in})
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), resp.Event)
			}
			successColor.Fprintf(cmd.OutOrStdout(), "recorded %s #%d (%s)\n", resp.Event.ReferenceID, resp.Event.Sequence, resp.Event.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&refType, "type", "t", "trip", "reference type: trip or shipment")
	f.StringVar(&eventTime, "time", "", "event time, RFC 3339 (default now)")
	f.StringVar(&description, "description", "", "free text")
	f.StringVar(&location, "location", "", "free location text")
	f.StringVar(&stopID, "stop", "", "stop id")
	f.Float64Var(&lat, "lat", 0, "latitude")
	f.Float64Var(&lng, "lng", 0, "longitude")
	f.StringVar(&actor, "actor", "", "actor id")
	f.StringVar(&externalID, "external-id", "", "producer event id for idempotent retries")
	f.StringVar((*string)(&in.Source), "source", "", "event source (default manual)")
	f.StringVar(&payload, "payload", "", "JSON payload")
	return cmd
}

type filterFlags struct {
	refType, from, to, search string
}

func (ff *filterFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&ff.refType, "type", "t", "all", "all, trip or shipment")
	f.StringVar(&ff.from, "from", "", "lower bound, RFC 3339 or YYYY-MM-DD")
	f.StringVar(&ff.to, "to", "", "upper bound, RFC 3339 or YYYY-MM-DD (whole day)")
	f.StringVarP(&ff.search, "search", "s", "", "match code, description or location")
}

func (ff *filterFlags) request(org string) *tracklogGRPC.ListEventsRequest {
	return &tracklogGRPC.ListEventsRequest{
		OrganizationID: org,
		ReferenceType:  ff.refType,
		DateFrom:       ff.from,
		DateTo:         ff.to,
		Search:         ff.search,
	}
}

func newEventsCmd(c *cli) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:     "events",
		Aliases: []string{"ls"},
		Short:   "List recent events, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			org, err := c.org()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd.Context())
			defer cancel()
			resp, err := c.client.ListEvents(ctx, ff.request(org))
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), resp.Events)
			}
			renderEvents(cmd.OutOrStdout(), resp.Events)
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

func newExportCmd(c *cli) *cobra.Command {
	var (
		ff  filterFlags
		out string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the filtered feed as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			org, err := c.org()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd.Context())
			defer cancel()
			resp, err := c.client.ExportEvents(ctx, ff.request(org))
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err := cmd.OutOrStdout().Write([]byte(resp.CSV))
				return err
			}
			if err := os.WriteFile(out, []byte(resp.CSV), 0o644); err != nil {
				return errors.Wrapf(err, "write %s", out)
			}
			successColor.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
			return nil
		},
	}
	ff.register(cmd)
	cmd.Flags().StringVarP(&out, "output", "o", "", "file to write (default stdout)")
	return cmd
}

func newHistoryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "history <trip|shipment> <referenceId>",
		Short: "Show every event of one trip or shipment, oldest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd.Context())
			defer cancel()
			resp, err := c.client.GetHistory(ctx, &tracklogGRPC.GetHistoryRequest{ReferenceType: args[0], ReferenceID: args[1]})
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), resp.Events)
			}
			renderEvents(cmd.OutOrStdout(), resp.Events)
			return nil
		},
	}
}

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			org, err := c.org()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd.Context())
			defer cancel()
			resp, err := c.client.GetStats(ctx, &tracklogGRPC.OrganizationRequest{OrganizationID: org})
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), resp.Stats)
			}
			renderStats(cmd.OutOrStdout(), resp.Stats)
			return nil
		},
	}
}

func newStoppedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stopped",
		Short: "List stalled trips and shipments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			org, err := c.org()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd.Context())
			defer cancel()
			resp, err := c.client.ListStoppedItems(ctx, &tracklogGRPC.OrganizationRequest{OrganizationID: org})
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), resp.Items)
			}
			renderStopped(cmd.OutOrStdout(), resp.Items)
			return nil
		},
	}
}

func newSearchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find trips by code and shipments by tracking number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			org, err := c.org()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd.Context())
			defer cancel()
			resp, err := c.client.SearchReferences(ctx, &tracklogGRPC.SearchReferencesRequest{OrganizationID: org, Query: args[0]})
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), resp.Results)
			}
			renderSearch(cmd.OutOrStdout(), resp.Results)
			return nil
		},
	}
}
