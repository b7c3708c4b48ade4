package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/xbrl/instance"
)

var (
	jsonOut         string
	jsonOverrideIDs bool
)

var jsonCmd = &cobra.Command{
	Use:   "json <url-or-path>",
	Short: "Parse a filing and export xBRL-JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p, err := newParser()
		if err != nil {
			return eris.Wrap(err, "json: build parser")
		}

		inst, err := p.ParseInstance(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "json: parse")
		}

		data, err := inst.JSON(instance.JSONOptions{OverrideFactIDs: jsonOverrideIDs, Indent: "  "})
		if err != nil {
			return eris.Wrap(err, "json: serialize")
		}

		if jsonOut == "" || jsonOut == "-" {
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		}
		if err := os.WriteFile(jsonOut, data, 0o644); err != nil {
			return eris.Wrapf(err, "json: write %s", jsonOut)
		}
		zap.L().Info("json written", zap.String("path", jsonOut), zap.Int("facts", len(inst.Facts)))
		return nil
	},
}

func init() {
	jsonCmd.Flags().StringVarP(&jsonOut, "out", "o", "-", "output file (default stdout)")
	jsonCmd.Flags().BoolVar(&jsonOverrideIDs, "override-fact-ids", false, "replace fact ids with f1..fN")
	rootCmd.AddCommand(jsonCmd)
}
