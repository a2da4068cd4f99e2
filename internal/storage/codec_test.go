package storage

import (
	"errors"
	"testing"

	"qsoul/internal/model"
)

func TestRunCodecRoundTrip(t *testing.T) {
	run := sampleRun("run-a", "2026-01-01T00:00:00Z")

	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode run: %v", err)
	}
	decoded, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if decoded != run {
		t.Fatalf("run mismatch: got=%+v want=%+v", decoded, run)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	run := sampleRun("run-a", "")
	run.SchemaVersion = CurrentSchemaVersion + 1
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode run: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	best := sampleBest()
	best.VersionedRecord = model.VersionedRecord{}
	data, err = EncodeBest(best)
	if err != nil {
		t.Fatalf("encode best: %v", err)
	}
	if _, err := DecodeBest(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestStepsCodecKeepsMutationNames(t *testing.T) {
	data, err := EncodeSteps(sampleSteps())
	if err != nil {
		t.Fatalf("encode steps: %v", err)
	}
	decoded, err := DecodeSteps(data)
	if err != nil {
		t.Fatalf("decode steps: %v", err)
	}
	if decoded[1].Mutation != model.MutationGeneFlip || !decoded[1].Applied {
		t.Fatalf("unexpected step: %+v", decoded[1])
	}
}

func TestDreamLogCodecNumbersDecodeAsFloat(t *testing.T) {
	data, err := EncodeDreamLog([]model.DreamEvent{{Generation: 3, Event: "new_best", Metadata: map[string]any{"step": 4}}})
	if err != nil {
		t.Fatalf("encode dream log: %v", err)
	}
	decoded, err := DecodeDreamLog(data)
	if err != nil {
		t.Fatalf("decode dream log: %v", err)
	}
	if decoded[0].Generation != 3 || decoded[0].Metadata["step"] != 4.0 {
		t.Fatalf("unexpected dream event: %+v", decoded[0])
	}
}

func TestDecodeSeriesRejectsGarbage(t *testing.T) {
	if _, err := DecodeSeries([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}
