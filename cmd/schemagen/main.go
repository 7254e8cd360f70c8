package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"footlights/stage/internal/proto"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	schema := buildSchema()

	if err := writeSchema(outPath, schema); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

// wireSurface gathers every payload that can cross the relay so the schema
// covers the full protocol.
type wireSurface struct {
	Envelope       proto.Envelope       `json:"envelope"`
	EnterScene     proto.EnterScene     `json:"enterscene"`
	ExitScene      proto.ExitScene      `json:"exitscene"`
	PositionUpdate proto.PositionUpdate `json:"positionupdate"`
	Push           proto.Push           `json:"push"`
	Swap           proto.Swap           `json:"swap"`
	Move           proto.Move           `json:"move"`
	Emote          proto.Emote          `json:"emote"`
	AddTexture     proto.AddTexture     `json:"addtexture"`
	AddAllTextures proto.AddAllTextures `json:"addalltextures"`
	StageActor     proto.StageActor     `json:"stage"`
	Narrator       proto.Narrator       `json:"narrator"`
	DecayText      proto.DecayText      `json:"decaytext"`
	RenderInsert   proto.RenderInsert   `json:"renderinsert"`
	Typing         proto.Typing         `json:"typingevent"`
	Resync         proto.ResyncData     `json:"resyncevent"`
	ReqResync      proto.ReqResyncData  `json:"reqresync"`
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(wireSurface))
	schema.Title = "Footlights Stage Protocol"
	schema.Description = "Validates envelopes exchanged between stage clients through the relay"
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
