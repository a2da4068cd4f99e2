package storage

import (
	"encoding/json"
	"errors"

	"qsoul/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned stamps a record with the current schema and codec versions.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeBest(b model.BestRecord) ([]byte, error) {
	return json.Marshal(b)
}

func DecodeBest(data []byte) (model.BestRecord, error) {
	var best model.BestRecord
	if err := json.Unmarshal(data, &best); err != nil {
		return model.BestRecord{}, err
	}
	if err := checkVersion(best.VersionedRecord); err != nil {
		return model.BestRecord{}, err
	}
	return best, nil
}

func EncodeSeries(series []float64) ([]byte, error) {
	return json.Marshal(series)
}

func DecodeSeries(data []byte) ([]float64, error) {
	var series []float64
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, err
	}
	return series, nil
}

func EncodeSteps(steps []model.StepRecord) ([]byte, error) {
	return json.Marshal(steps)
}

func DecodeSteps(data []byte) ([]model.StepRecord, error) {
	var steps []model.StepRecord
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// EncodeDreamLog keeps metadata as plain JSON; numbers come back as float64.
func EncodeDreamLog(events []model.DreamEvent) ([]byte, error) {
	return json.Marshal(events)
}

func DecodeDreamLog(data []byte) ([]model.DreamEvent, error) {
	var events []model.DreamEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
