package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"reeltrust/internal/config"
	"reeltrust/internal/manifest"
	"reeltrust/internal/reel"
)

type call struct {
	name string
	args []string
}

// fakeRunner returns canned output keyed by tool name.
type fakeRunner struct {
	out   map[string][]byte
	err   map[string]error
	calls []call
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if err := f.err[name]; err != nil {
		return nil, err
	}
	return f.out[name], nil
}

func TestParseSSIMStats(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []float64
		wantErr bool
	}{
		{
			name: "ffmpeg stats",
			input: "n:1 Y:0.995 U:0.998 V:0.997 All:0.996 (23.97)\n" +
				"n:2 Y:0.701 U:0.800 V:0.790 All:0.740 (5.85)\n",
			want: []float64{0.996, 0.740},
		},
		{
			name:  "identical frames",
			input: "n:1 Y:1.000000 U:1.000000 V:1.000000 All:1.000000 (inf)\n",
			want:  []float64{1},
		},
		{
			name:  "blank lines skipped",
			input: "\nn:1 Y:0.9 U:0.9 V:0.9 All:0.9 (10.0)\n\n",
			want:  []float64{0.9},
		},
		{name: "empty", input: "", want: nil},
		{name: "missing All", input: "n:1 Y:0.9 U:0.9 V:0.9\n", wantErr: true},
		{name: "bad number", input: "n:1 All:abc (1)\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSSIMStats(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSSIMStats() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseSSIMStats() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFFmpeg_BuildDigest(t *testing.T) {
	r := &fakeRunner{}
	f := NewFFmpeg("/usr/bin/ffmpeg", r)
	params := manifest.DigestParams{Width: 240, Quality: manifest.QualityHigh}

	if err := f.BuildDigest(context.Background(), "in.mov", params, "out/digest_video.mp4"); err != nil {
		t.Fatalf("BuildDigest() error = %v", err)
	}
	if len(r.calls) != 1 || r.calls[0].name != "/usr/bin/ffmpeg" {
		t.Fatalf("calls = %+v", r.calls)
	}
	args := r.calls[0].args
	for _, want := range [][]string{
		{"-i", "in.mov"},
		{"-vf", "scale=240:-2"},
		{"-crf", "23"},
		{"-threads", "1"},
		{"-y", "out/digest_video.mp4"},
	} {
		i := slices.Index(args, want[0])
		if i < 0 || i+1 >= len(args) || args[i+1] != want[1] {
			t.Errorf("args missing %v: %v", want, args)
		}
	}
	if !slices.Contains(args, "-an") {
		t.Errorf("args do not drop audio: %v", args)
	}

	if err := f.BuildDigest(context.Background(), "in.mov", manifest.DigestParams{Width: 241, Quality: 23}, "out.mp4"); err == nil {
		t.Error("BuildDigest() with odd width expected error")
	}
}

func TestFFmpeg_Compare(t *testing.T) {
	r := &fakeRunner{out: map[string][]byte{
		"ffmpeg": []byte("n:1 Y:1 U:1 V:1 All:0.99 (20)\nn:2 Y:1 U:1 V:1 All:0.98 (20)\n"),
	}}
	f := NewFFmpeg("ffmpeg", r)

	got, err := f.Compare(context.Background(), "ref.mp4", "cand.mp4")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if diff := cmp.Diff([]float64{0.99, 0.98}, got); diff != "" {
		t.Errorf("Compare() mismatch (-want +got):\n%s", diff)
	}
	args := r.calls[0].args
	if args[slices.Index(args, "-filter_complex")+1] != "[0:v][1:v]ssim=stats_file=-" {
		t.Errorf("filter = %v", args)
	}

	r.err = map[string]error{"ffmpeg": errors.New("exit status 1")}
	if _, err := f.Compare(context.Background(), "ref.mp4", "cand.mp4"); err == nil {
		t.Error("Compare() expected error from runner")
	}
}

func TestParseProbeOutput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    manifest.DigestProperties
		wantErr bool
	}{
		{
			name:  "constant frame rate",
			input: `{"streams":[{"avg_frame_rate":"30/1","r_frame_rate":"30/1","nb_read_packets":"300","duration":"10.000000"}],"format":{"duration":"10.010000"}}`,
			want:  manifest.DigestProperties{FrameCount: 300, FPS: 30, DurationSeconds: 10},
		},
		{
			name:  "ntsc rate",
			input: `{"streams":[{"avg_frame_rate":"30000/1001","r_frame_rate":"30000/1001","nb_read_packets":"2997"}],"format":{"duration":"100.0"}}`,
			want:  manifest.DigestProperties{FrameCount: 2997, FPS: 30000.0 / 1001.0, DurationSeconds: 100},
		},
		{
			name:  "avg rate unknown",
			input: `{"streams":[{"avg_frame_rate":"0/0","r_frame_rate":"25/1","nb_read_packets":"50","duration":"N/A"}],"format":{"duration":"2.0"}}`,
			want:  manifest.DigestProperties{FrameCount: 50, FPS: 25, DurationSeconds: 2},
		},
		{name: "no video stream", input: `{"streams":[],"format":{}}`, wantErr: true},
		{name: "bad count", input: `{"streams":[{"nb_read_packets":"x","avg_frame_rate":"30/1"}]}`, wantErr: true},
		{name: "not json", input: `frames=300`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProbeOutput([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProbeOutput() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.FrameCount != tt.want.FrameCount || math.Abs(got.FPS-tt.want.FPS) > 1e-9 ||
				math.Abs(got.DurationSeconds-tt.want.DurationSeconds) > 1e-9 {
				t.Errorf("ParseProbeOutput() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFFprobe_HasAudio(t *testing.T) {
	r := &fakeRunner{out: map[string][]byte{"ffprobe": []byte("1\n")}}
	p := NewFFprobe("ffprobe", r)

	ok, err := p.HasAudio(context.Background(), "clip.mp4")
	if err != nil || !ok {
		t.Errorf("HasAudio() = %v, %v; want true", ok, err)
	}

	r.out["ffprobe"] = []byte("\n")
	ok, err = p.HasAudio(context.Background(), "clip.mp4")
	if err != nil || ok {
		t.Errorf("HasAudio() = %v, %v; want false", ok, err)
	}
}

func TestChromaprint_Fingerprint(t *testing.T) {
	r := &fakeRunner{out: map[string][]byte{
		"ffprobe": []byte("1\n"),
		"fpcalc":  []byte(`{"duration": 12.5, "fingerprint": [1, 4294967295, 42]}`),
	}}
	c := NewChromaprint("fpcalc", r, NewFFprobe("ffprobe", r), 0)

	fp, err := c.Fingerprint(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if fp.Algorithm != ChromaprintAlgorithm || fp.DurationSeconds != 12.5 {
		t.Errorf("Fingerprint() = %+v", fp)
	}
	raw, err := DecodeRaw(fp.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{1, math.MaxUint32, 42}, raw); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
	if err := fp.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestChromaprint_FingerprintNoAudio(t *testing.T) {
	r := &fakeRunner{out: map[string][]byte{"ffprobe": nil}}
	c := NewChromaprint("fpcalc", r, NewFFprobe("ffprobe", r), 0)

	_, err := c.Fingerprint(context.Background(), "silent.mp4")
	if !errors.Is(err, reel.ErrNoAudio) {
		t.Errorf("Fingerprint() error = %v, want ErrNoAudio", err)
	}
	for _, c := range r.calls {
		if c.name == "fpcalc" {
			t.Error("fpcalc was run for media without audio")
		}
	}
}

func TestParseFPCalcOutput_Signed(t *testing.T) {
	fp, err := ParseFPCalcOutput([]byte(`{"duration": 1, "fingerprint": [-1]}`))
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := DecodeRaw(fp.Payload)
	if raw[0] != math.MaxUint32 {
		t.Errorf("signed item decoded to %d", raw[0])
	}

	if _, err := ParseFPCalcOutput([]byte(`{"duration": 1, "fingerprint": []}`)); err == nil {
		t.Error("ParseFPCalcOutput() with empty fingerprint expected error")
	}
}

func sequence(n int, seed uint32) []uint32 {
	out := make([]uint32, n)
	x := seed
	for i := range out {
		x = x*1664525 + 1013904223
		out[i] = x
	}
	return out
}

func TestSimilarity(t *testing.T) {
	a := sequence(200, 1)

	if got := Similarity(a, a); got != 1 {
		t.Errorf("Similarity(a, a) = %v, want 1", got)
	}

	shifted := append(sequence(10, 99), a...)
	if got := Similarity(a, shifted); got != 1 {
		t.Errorf("Similarity with 10-item offset = %v, want 1", got)
	}

	unrelated := sequence(200, 7)
	if got := Similarity(a, unrelated); got > 0.7 {
		t.Errorf("Similarity of unrelated fingerprints = %v, want about 0.5", got)
	}

	if got := Similarity(nil, a); got != 0 {
		t.Errorf("Similarity(nil, a) = %v, want 0", got)
	}
}

func TestChromaprint_Match(t *testing.T) {
	c := NewChromaprint("fpcalc", &fakeRunner{}, nil, 0.75)
	fp := func(raw []uint32) *manifest.AudioFingerprint {
		return &manifest.AudioFingerprint{Algorithm: ChromaprintAlgorithm, Version: "1", Payload: EncodeRaw(raw)}
	}
	a := sequence(100, 3)

	m, err := c.Match(fp(a), fp(a))
	if err != nil {
		t.Fatal(err)
	}
	if !m.Matched || m.Score != 1 {
		t.Errorf("Match(a, a) = %+v", m)
	}

	m, err = c.Match(fp(a), fp(sequence(100, 4)))
	if err != nil {
		t.Fatal(err)
	}
	if m.Matched {
		t.Errorf("Match(a, b) = %+v, want no match", m)
	}

	if _, err := c.Match(fp(a), manifest.SilentFingerprint()); err == nil {
		t.Error("Match() against silent fingerprint expected error")
	}
	if _, err := c.Match(fp(a), &manifest.AudioFingerprint{Algorithm: "other", Version: "1", Payload: "AAAA"}); err == nil {
		t.Error("Match() with foreign algorithm expected error")
	}
}

func TestExecRunner(t *testing.T) {
	if _, err := (ExecRunner{}).Run(context.Background(), "reeltrust-no-such-tool"); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Run() missing tool error = %v, want ErrToolNotFound", err)
	}

	out, err := (ExecRunner{Timeout: time.Minute}).Run(context.Background(), "sh", "-c", "echo ok")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.TrimSpace(string(out)) != "ok" {
		t.Errorf("Run() = %q", out)
	}

	_, err = (ExecRunner{}).Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Run() error = %v, want stderr in message", err)
	}
}

func TestNewTools(t *testing.T) {
	tools := NewToolsFromConfig(config.ToolsConfig{FFmpeg: "ffmpeg", FFprobe: "ffprobe", FPCalc: "fpcalc"}, 0.8)
	for name, v := range map[string]any{
		"Digests":      tools.Digests,
		"Comparer":     tools.Comparer,
		"Prober":       tools.Prober,
		"Fingerprints": tools.Fingerprints,
		"Clips":        tools.Clips,
	} {
		if v == nil {
			t.Errorf("%s is nil", name)
		}
	}
	if got := fmt.Sprintf("%T", tools.Digests); got != "*media.FFmpeg" {
		t.Errorf("Digests type = %s", got)
	}
}

func TestFFmpeg_ExtractClip(t *testing.T) {
	r := &fakeRunner{}
	f := NewFFmpeg("ffmpeg", r)

	if err := f.ExtractClip(context.Background(), "cand.mp4", "clips/clip_01.mp4", 3500*time.Millisecond, 6500*time.Millisecond); err != nil {
		t.Fatalf("ExtractClip() error = %v", err)
	}
	args := r.calls[0].args
	for _, want := range [][]string{
		{"-ss", "3.500"},
		{"-i", "cand.mp4"},
		{"-t", "6.500"},
		{"-c", "copy"},
		{"-y", "clips/clip_01.mp4"},
	} {
		i := slices.Index(args, want[0])
		if i < 0 || i+1 >= len(args) || args[i+1] != want[1] {
			t.Errorf("args missing %v: %v", want, args)
		}
	}
	if slices.Index(args, "-ss") > slices.Index(args, "-i") {
		t.Errorf("-ss must precede the input to seek it: %v", args)
	}

	r.err = map[string]error{"ffmpeg": errors.New("exit status 1")}
	if err := f.ExtractClip(context.Background(), "cand.mp4", "out.mp4", 0, time.Second); err == nil {
		t.Error("ExtractClip() expected error from runner")
	}
}

func TestFFmpeg_SideBySide(t *testing.T) {
	r := &fakeRunner{}
	f := NewFFmpeg("ffmpeg", r)

	left := reel.LabeledVideo{Path: "cand.mp4", Label: "Candidate"}
	right := reel.LabeledVideo{Path: "pkg/digest_video.mp4", Label: "Editor's 100% cut"}
	if err := f.SideBySide(context.Background(), left, right, "cmp.mp4", 2*time.Second, 5*time.Second); err != nil {
		t.Fatalf("SideBySide() error = %v", err)
	}
	args := r.calls[0].args

	var inputs []string
	for i, a := range args {
		if a == "-i" {
			inputs = append(inputs, args[i-2]+" "+args[i-1]+" "+args[i+1])
		}
	}
	if diff := cmp.Diff([]string{"-ss 2.000 cand.mp4", "-ss 2.000 pkg/digest_video.mp4"}, inputs); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}

	filter := args[slices.Index(args, "-filter_complex")+1]
	for _, want := range []string{
		"[1:v][0:v]scale2ref[right][left]",
		"[left][right]hstack",
		"text='Candidate'",
		"text='Editors 100 cut'",
	} {
		if !strings.Contains(filter, want) {
			t.Errorf("filter %q does not contain %q", filter, want)
		}
	}
	if args[len(args)-1] != "cmp.mp4" || !slices.Contains(args, "libx264") {
		t.Errorf("args = %v", args)
	}
}
