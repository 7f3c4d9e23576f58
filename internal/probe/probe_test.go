package probe_test

import (
	"context"
	"testing"

	"github.com/vidstick/vidstick/internal/probe"
)

func TestHasAlphaByPixFmt(t *testing.T) {
	cases := []struct {
		pixFmt string
		path   string
		want   bool
	}{
		{"yuva420p", "clip.mp4", true},
		{"YUVA444P", "clip.mp4", true},
		{"rgba", "clip.mov", true},
		{"pal8", "clip.mov", true},
		{"yuv420p", "clip.mp4", false},
		{"yuv420p", "clip.GIF", true},
		{"", "anim.gif", true},
	}
	for _, c := range cases {
		if got := probe.HasAlpha(c.pixFmt, c.path); got != c.want {
			t.Errorf("HasAlpha(%q, %q) = %v, want %v", c.pixFmt, c.path, got, c.want)
		}
	}
}

func TestProbeToolMissing(t *testing.T) {
	p := probe.New("definitely-not-a-real-probe-binary")
	_, err := p.Probe(context.Background(), "x.mp4")
	if err == nil {
		t.Fatal("expected error for missing probe binary")
	}
	var perr *probe.Error
	if !asProbeError(err, &perr) {
		t.Fatalf("expected *probe.Error, got %T: %v", err, err)
	}
	if perr.Kind != probe.ToolMissing {
		t.Errorf("expected ToolMissing, got %v", perr.Kind)
	}
}

func asProbeError(err error, target **probe.Error) bool {
	if pe, ok := err.(*probe.Error); ok {
		*target = pe
		return true
	}
	return false
}
