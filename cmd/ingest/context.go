package main

import (
	"context"

	"cube_wizard/internal/app/di"
	decks "cube_wizard/internal/feature/decks/domain/entity"
	"cube_wizard/internal/feature/ingest/domain/entity"
	ingestusecase "cube_wizard/internal/feature/ingest/usecase"
)

type imageProcessor interface {
	ProcessImage(ctx context.Context, in ingestusecase.ImageInput) (decks.DeckRecord, error)
}

type batchRunner interface {
	Run(ctx context.Context, root string) (entity.BatchReport, error)
}

type cubeResolver interface {
	Resolve(ref string) string
}

type catalogCache interface {
	Invalidate(ctx context.Context, name, setHint string) error
	Purge(ctx context.Context) error
}

// services is the slice of the application the commands use.
type services struct {
	Processor      imageProcessor
	Importer       batchRunner
	Cubes          cubeResolver
	Catalog        catalogCache
	SubmissionRoot string
	Close          func() error
}

type commandContext struct {
	open func(ctx context.Context) (*services, error)
}

func newCommandContext(open func(ctx context.Context) (*services, error)) *commandContext {
	return &commandContext{open: open}
}

// withServices opens the application for the duration of fn.
func (c *commandContext) withServices(ctx context.Context, fn func(*services) error) (err error) {
	svc, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if svc.Close == nil {
			return
		}
		if cerr := svc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(svc)
}

func openServices(ctx context.Context) (*services, error) {
	cfg := di.LoadConfig()
	c, err := di.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &services{
		Processor:      c.Pipeline,
		Importer:       c.Importer,
		Cubes:          c.Cubes,
		Catalog:        c.Catalog,
		SubmissionRoot: cfg.Ingest.SubmissionRoot,
		Close:          c.Close,
	}, nil
}
