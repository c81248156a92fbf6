package main

import (
	"testing"

	"github.com/hszk-dev/gocompress/internal/domain/model"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantErr    bool
		wantOutput string
	}{
		{name: "default output path", args: []string{"-input", "/videos/clip.mov"}, wantOutput: "/videos/clip.compressed.mp4"},
		{name: "explicit output path", args: []string{"-input", "clip.mov", "-output", "out/small.mp4"}, wantOutput: "out/small.mp4"},
		{name: "missing input", args: []string{"-tier", "LOW"}, wantErr: true},
		{name: "unknown flag", args: []string{"-input", "clip.mov", "-bogus"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.output != tt.wantOutput {
				t.Errorf("output = %q, want %q", got.output, tt.wantOutput)
			}
		})
	}
}

func TestOptions_CompressRequest(t *testing.T) {
	o, err := parseFlags([]string{
		"-input", "clip.mov",
		"-tier", "very_low",
		"-codec", "hevc",
		"-reduce-fps", "24",
		"-rotate", "90",
		"-no-auto-orient",
		"-delete-source",
	})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}

	req, err := o.compressRequest()
	if err != nil {
		t.Fatalf("compressRequest() error = %v", err)
	}

	if req.Tier != model.TierVeryLow || req.Codec != model.CodecHEVC {
		t.Errorf("tier/codec = %s/%s", req.Tier, req.Codec)
	}
	if !req.Options.ReduceFrameRate || req.Options.ReducedFrameRate != 24 {
		t.Errorf("frame rate options = %+v", req.Options)
	}
	if req.Options.RotationOverride == nil || *req.Options.RotationOverride != 90 {
		t.Errorf("RotationOverride = %v", req.Options.RotationOverride)
	}
	if req.Options.AutoOrient {
		t.Error("expected auto-orient disabled")
	}
	if !req.DeleteSource || req.OutputPath != "clip.compressed.mp4" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestOptions_CompressRequest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts options
	}{
		{name: "unknown tier", opts: options{tier: "EXTREME", codec: "H264"}},
		{name: "unknown codec", opts: options{tier: "LOW", codec: "VP9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.compressRequest(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
