package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maraichr/creditlens/internal/scoring"
)

var calibrationFile string

var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Print the effective scoring calibration as YAML",
	Long: `Print the calibration the scoring engine and validator would use: the
built-in defaults merged with --file (or CALIBRATION_FILE when --file is not given).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := calibrationFile
		if path == "" {
			path = os.Getenv("CALIBRATION_FILE")
		}
		cal, err := scoring.LoadCalibration(path)
		if err != nil {
			return err
		}
		data, err := cal.Marshal()
		if err != nil {
			return fmt.Errorf("marshalling calibration: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	calibrationCmd.Flags().StringVarP(&calibrationFile, "file", "f", "", "path to a calibration YAML file")
}
