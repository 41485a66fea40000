package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/chedda-agent/internal/config"
	"github.com/ggonzalez94/chedda-agent/internal/model"
)

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"a": 1, "b": 2}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"a"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["a"].(float64) != 1 {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["b"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderSelectDottedPath(t *testing.T) {
	env := model.Envelope{
		Success: true,
		Data: map[string]any{
			"status": "proposed",
			"data":   map[string]any{"multisig": "0xabc", "nonce": 3},
		},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"data.multisig"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if out["data.multisig"] != "0xabc" || len(out) != 1 {
		t.Fatalf("unexpected projection: %s", buf.String())
	}
}

func TestRenderPlainFlattensNestedObjects(t *testing.T) {
	env := model.Envelope{
		Success: true,
		Data: []map[string]any{{
			"category":  "eth-defi",
			"formatted": map[string]any{"supply_apy": "5.25%"},
		}},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "category=eth-defi formatted.supply_apy=5.25%" {
		t.Fatalf("unexpected plain output: %s", got)
	}
}

func TestRenderPlainError(t *testing.T) {
	env := model.Envelope{
		Success: false,
		Error:   &model.ErrorBody{Code: 22, Type: "unknown_vault", Message: "unknown vault category \"moon\""},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "error unknown_vault (22):") {
		t.Fatalf("unexpected plain error: %s", buf.String())
	}
}
