package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/gerente/internal/apiclient"
	"github.com/florianilch/gerente/internal/resource"
)

func requestCommand() *cli.Command {
	return &cli.Command{
		Name:      "request",
		Usage:     "send an authenticated request and print the answer",
		ArgsUsage: "METHOD PATH",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "JSON body; @file reads it from a file, - from stdin",
			},
			&cli.StringSliceFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "query parameter as key=value (repeatable)",
			},
		},
		Action: requestAction,
	}
}

func requestAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("expected METHOD and PATH, got %d arguments", cmd.Args().Len())
	}
	method := strings.ToUpper(cmd.Args().Get(0))
	path := cmd.Args().Get(1)

	query, err := parsePairs(cmd.StringSlice("query"))
	if err != nil {
		return err
	}

	var body any
	if data := cmd.String("data"); data != "" {
		raw, err := readData(cmd, data)
		if err != nil {
			return err
		}
		if !json.Valid(raw) {
			return fmt.Errorf("request body is not valid JSON")
		}
		body = json.RawMessage(raw)
	}

	d, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.cleanup()

	resp, err := d.app.Client().Request(ctx, method, path, body, query)
	if err != nil {
		// Show validation details the way the server sent them
		var apiErr *apiclient.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			for field, messages := range apiErr.FieldErrors() {
				fmt.Fprintf(errWriter(cmd), "%s: %s\n", field, strings.Join(messages, " "))
			}
		}
		return err
	}

	return printJSON(outWriter(cmd), resp.Body)
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "list a resource collection",
		ArgsUsage:   "RESOURCE",
		Description: "RESOURCE is one of: " + strings.Join(endpointNames(resource.Catalog), ", "),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "search",
				Aliases: []string{"s"},
				Usage:   "full-text search",
			},
			&cli.StringFlag{
				Name:  "ordering",
				Usage: "field to order by, prefix with - for descending",
			},
			&cli.IntFlag{
				Name:  "page",
				Usage: "page number",
			},
			&cli.BoolFlag{
				Name:  "active",
				Usage: "only active (--active) or inactive (--active=false) objects",
			},
			&cli.StringSliceFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "collection filter as key=value (repeatable)",
			},
		},
		Action: listAction,
	}
}

func listAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected RESOURCE")
	}
	ep, err := resource.Lookup(cmd.Args().First())
	if err != nil {
		return err
	}

	extra, err := parsePairs(cmd.StringSlice("filter"))
	if err != nil {
		return err
	}
	params := resource.ListParams{
		Search:   cmd.String("search"),
		Ordering: cmd.String("ordering"),
		Page:     int(cmd.Int("page")),
		Extra:    extra,
	}
	if cmd.IsSet("active") {
		active := cmd.Bool("active")
		params.Active = &active
	}

	d, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.cleanup()

	page, err := resource.List[json.RawMessage](ctx, d.app.Client(), ep, params)
	if err != nil {
		return err
	}

	data, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return printJSON(outWriter(cmd), data)
}

func summaryCommand() *cli.Command {
	return &cli.Command{
		Name:      "summary",
		Usage:     "count the objects of several collections",
		ArgsUsage: "[RESOURCE...]",
		Action:    summaryAction,
	}
}

func summaryAction(ctx context.Context, cmd *cli.Command) error {
	endpoints := resource.Catalog
	if cmd.Args().Present() {
		endpoints = nil
		for _, name := range cmd.Args().Slice() {
			ep, err := resource.Lookup(name)
			if err != nil {
				return err
			}
			endpoints = append(endpoints, ep)
		}
	}

	d, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.cleanup()

	counts, err := resource.Summary(ctx, d.app.Client(), endpoints)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(outWriter(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tTOTAL")
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%d\n", c.Endpoint, c.Total)
	}
	return tw.Flush()
}

// parsePairs turns key=value arguments into query values.
func parsePairs(pairs []string) (url.Values, error) {
	values := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", pair)
		}
		values.Add(key, value)
	}
	return values, nil
}

func readData(cmd *cli.Command, data string) ([]byte, error) {
	switch {
	case data == "-":
		return io.ReadAll(inReader(cmd))
	case strings.HasPrefix(data, "@"):
		return os.ReadFile(strings.TrimPrefix(data, "@"))
	default:
		return []byte(data), nil
	}
}

// printJSON indents JSON bodies and prints anything else verbatim.
func printJSON(w io.Writer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		buf.Reset()
		buf.Write(data)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func endpointNames(endpoints []resource.Endpoint) []string {
	names := make([]string, len(endpoints))
	for i, ep := range endpoints {
		names[i] = ep.String()
	}
	return names
}
