package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	decksdto "cube_wizard/internal/feature/decks/transport/http/dto"
	"cube_wizard/internal/feature/ingest/adapters"
	"cube_wizard/internal/feature/ingest/domain/entity"
	ingestusecase "cube_wizard/internal/feature/ingest/usecase"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		pilot      string
		wins       int
		losses     int
		draws      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "process <image> [cube_hint]",
		Short: "Process a single deck photo",
		Long: "Extracts the card list from one photo, reconciles it against the catalog and stores the deck.\n" +
			"Without --pilot the pilot and record are read from a file name of the form \"<Pilot> W-L[-D]\".",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			meta, err := processMetadata(path, pilot, wins, losses, draws)
			if err != nil {
				return err
			}
			if len(args) > 1 {
				meta.CubeRef = strings.TrimSpace(args[1])
			}

			return ctx.withServices(cmd.Context(), func(svc *services) error {
				meta.CubeID = meta.CubeRef
				if svc.Cubes != nil {
					meta.CubeID = svc.Cubes.Resolve(meta.CubeRef)
				}
				rec, err := svc.Processor.ProcessImage(cmd.Context(), ingestusecase.ImageInput{
					Data:     data,
					Name:     filepath.Base(path),
					Metadata: meta,
				})
				if err != nil {
					return fmt.Errorf("%s failed: %w", ingestusecase.StageOf(err), err)
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), decksdto.NewDeckResponse(rec))
				}
				printRecord(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&pilot, "pilot", "", "Pilot name (defaults to the file name metadata)")
	cmd.Flags().IntVar(&wins, "wins", 0, "Match wins")
	cmd.Flags().IntVar(&losses, "losses", 0, "Match losses")
	cmd.Flags().IntVar(&draws, "draws", 0, "Match draws")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the stored record as JSON")

	return cmd
}

func processMetadata(path, pilot string, wins, losses, draws int) (entity.Metadata, error) {
	if name := strings.TrimSpace(pilot); name != "" {
		if wins < 0 || losses < 0 || draws < 0 {
			return entity.Metadata{}, errors.New("match results must not be negative")
		}
		meta := entity.Metadata{Source: "flags"}
		meta.Pilot.Name = name
		meta.Pilot.MatchWins = wins
		meta.Pilot.MatchLosses = losses
		meta.Pilot.MatchDraws = draws
		return meta, nil
	}
	meta, err := adapters.ParseFilename(filepath.Base(path))
	if err != nil {
		return entity.Metadata{}, fmt.Errorf("--pilot is required when the file name is not \"<Pilot> W-L[-D]\": %w", err)
	}
	return meta, nil
}
