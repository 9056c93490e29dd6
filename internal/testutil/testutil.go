// Package testutil provides shared helpers for package tests: a quiet
// logger and builders for the fixture documents the staging and resolution
// tests feed through the pipeline.
package testutil

import (
	"log/slog"
	"os"
	"time"

	"github.com/lodestone-ai/lodestone/internal/model"
)

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// FixedClock returns a deterministic time source pinned to t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Person builds a minimal person extraction with the given full name.
func Person(fullName string) *model.ExtractedEntity {
	return &model.ExtractedEntity{
		EntityType: model.EntityPerson,
		Name:       model.Name{Full: fullName},
	}
}

// Business builds a minimal business extraction with the given legal name.
func Business(legalName string) *model.ExtractedEntity {
	return &model.ExtractedEntity{
		EntityType: model.EntityBusiness,
		Name:       model.Name{Legal: legalName},
	}
}

// Attr builds one extraction attribute captured at the given date.
func Attr(key string, value any, captured time.Time) model.Attribute {
	a := model.Attribute{Key: key, Value: value}
	if !captured.IsZero() {
		a.TimeDecay = &model.TimeDecay{CapturedDate: model.At(captured)}
	}
	return a
}

// PersonEntity builds a stored person entity with the given id and name.
func PersonEntity(id, fullName string) *model.Entity {
	return &model.Entity{
		EntityID:   id,
		EntityType: model.EntityPerson,
		Name:       model.Name{Full: fullName},
		SpokeID:    model.DefaultSpokeID,
		Provenance: model.ProvenanceChain{CreatedAt: model.Now()},
	}
}

// BusinessEntity builds a stored business entity with the given id and name.
func BusinessEntity(id, legalName string) *model.Entity {
	return &model.Entity{
		EntityID:   id,
		EntityType: model.EntityBusiness,
		Name:       model.Name{Legal: legalName},
		SpokeID:    model.DefaultSpokeID,
		Provenance: model.ProvenanceChain{CreatedAt: model.Now()},
	}
}
