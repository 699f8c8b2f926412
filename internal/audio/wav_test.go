package audio

import (
	"testing"
)

func TestEncodeDecodeWAV(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768, 1, -1, 0}
	sampleRate := 44100

	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(data) != 44+len(samples)*2 {
		t.Errorf("expected %d bytes, got %d", 44+len(samples)*2, len(data))
	}

	if err := ValidateWAV(data); err != nil {
		t.Errorf("encoded WAV failed validation: %v", err)
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if rate != sampleRate {
		t.Errorf("expected sample rate %d, got %d", sampleRate, rate)
	}

	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}

	for i, s := range samples {
		if decoded[i] != s {
			t.Errorf("sample %d: expected %d, got %d", i, s, decoded[i])
		}
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	if _, err := EncodeWAV(nil, 44100); err == nil {
		t.Error("expected error for empty samples")
	}
}

func TestWrapPCM(t *testing.T) {
	pcm := make([]byte, 2048)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}

	data, err := WrapPCM(pcm, 44100)
	if err != nil {
		t.Fatalf("WrapPCM failed: %v", err)
	}

	if err := ValidateWAV(data); err != nil {
		t.Errorf("wrapped PCM failed WAV validation: %v", err)
	}

	if len(data) != 44+len(pcm) {
		t.Errorf("expected %d bytes, got %d", 44+len(pcm), len(data))
	}

	// Payload bytes must survive wrapping untouched.
	for i, b := range pcm {
		if data[44+i] != b {
			t.Fatalf("payload byte %d changed: expected %d, got %d", i, b, data[44+i])
		}
	}
}

func TestWrapPCMOddLength(t *testing.T) {
	if _, err := WrapPCM([]byte{1, 2, 3}, 44100); err == nil {
		t.Error("expected error for odd-length PCM data")
	}
}

func TestGetWAVDuration(t *testing.T) {
	sampleRate := 8000
	samples := make([]int16, sampleRate) // exactly one second

	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	duration, err := GetWAVDuration(data)
	if err != nil {
		t.Fatalf("GetWAVDuration failed: %v", err)
	}

	if duration != 1.0 {
		t.Errorf("expected 1.0s duration, got %f", duration)
	}
}

func TestValidateWAVRejectsGarbage(t *testing.T) {
	garbage := make([]byte, 100)
	if err := ValidateWAV(garbage); err == nil {
		t.Error("expected validation error for non-WAV data")
	}

	if err := ValidateWAV([]byte("short")); err == nil {
		t.Error("expected validation error for short data")
	}
}
