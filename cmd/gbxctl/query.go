package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gbxremote/config"
	"gbxremote/message"
)

func queryCmd(cfg *config.Config) *cobra.Command {
	var rawJSON bool

	cmd := &cobra.Command{
		Use:   "query METHOD [PARAM...]",
		Short: "Call one method and print its result as JSON",
		Long: `Call one method on the dedicated server and print its result as JSON.

Parameters are typed from their text: integers, decimals, true/false, and
everything else as strings. With --json every parameter is parsed as JSON
instead, which allows lists and structs.

  gbxctl query GetVersion
  gbxctl query Authenticate SuperAdmin secret
  gbxctl query SetServerName '$f00My Server'
  gbxctl query --json SetModeScriptSettings '{"S_TimeLimit": 300}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make([]any, 0, len(args)-1)
			for _, a := range args[1:] {
				p, err := parseParam(a, rawJSON)
				if err != nil {
					return err
				}
				params = append(params, p)
			}

			ctx := cmd.Context()
			c := newClient(cfg)
			if err := connect(ctx, cfg, c); err != nil {
				return err
			}
			defer c.Disconnect()

			res, err := c.Query(ctx, args[0], params...)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().BoolVar(&rawJSON, "json", false, "parse parameters as JSON")

	return cmd
}

// parseParam types one command line parameter.
func parseParam(s string, rawJSON bool) (any, error) {
	if rawJSON {
		var v any
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", s, err)
		}
		return fromJSON(v), nil
	}
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int(n), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return s, nil
}

// fromJSON converts decoded JSON into codec values. Object keys are sorted
// since JSON objects carry no order.
func fromJSON(v any) any {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		f, _ := v.Float64()
		return f
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = fromJSON(item)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		st := message.NewStruct()
		for _, k := range keys {
			st.Set(k, fromJSON(v[k]))
		}
		return st
	default:
		return v
	}
}
