package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/xbrl/instance"
)

var parseLocal bool

var parseCmd = &cobra.Command{
	Use:   "parse <url-or-path>",
	Short: "Parse a filing and print a fact summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "parse"))

		p, err := newParser()
		if err != nil {
			return eris.Wrap(err, "parse: build parser")
		}

		var inst *instance.Instance
		if parseLocal {
			inst, err = p.ParseInstanceLocally(ctx, args[0])
		} else {
			inst, err = p.ParseInstance(ctx, args[0])
		}
		if err != nil {
			return eris.Wrap(err, "parse")
		}

		log.Info("parse complete")
		fmt.Fprintln(cmd.OutOrStdout(), inst.String())
		return nil
	},
}

func init() {
	parseCmd.Flags().BoolVar(&parseLocal, "local", false, "parse from disk without network")
	rootCmd.AddCommand(parseCmd)
}
