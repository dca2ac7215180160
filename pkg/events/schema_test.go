package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basePayload() map[string]any {
	return map[string]any{
		FieldActorID:    7,
		FieldTargetType: "project",
		FieldTargetID:   uint(42),
	}
}

func TestSchema_Validate(t *testing.T) {
	schema := NewSchema(
		Required("project_title", KindString),
		Optional("update_summary", KindString, ""),
		Field{Name: "mentions", Kind: KindList, Elem: KindString, Default: []any{}},
		Optional("meta", KindMap, nil),
		Optional("draft", KindBool, false),
	)

	tests := []struct {
		name      string
		mutate    func(map[string]any)
		wantField string
	}{
		{
			name:   "valid",
			mutate: func(p map[string]any) { p["project_title"] = "demo" },
		},
		{
			name:      "missing required",
			mutate:    func(map[string]any) {},
			wantField: "project_title",
		},
		{
			name:      "required null",
			mutate:    func(p map[string]any) { p["project_title"] = nil },
			wantField: "project_title",
		},
		{
			name: "number as string",
			mutate: func(p map[string]any) {
				p["project_title"] = "demo"
				p[FieldTargetID] = "42"
			},
			wantField: FieldTargetID,
		},
		{
			name: "wrong list element",
			mutate: func(p map[string]any) {
				p["project_title"] = "demo"
				p["mentions"] = []any{"alice", 3}
			},
			wantField: "mentions",
		},
		{
			name: "string where map expected",
			mutate: func(p map[string]any) {
				p["project_title"] = "demo"
				p["meta"] = "nope"
			},
			wantField: "meta",
		},
		{
			name: "optional null is absent",
			mutate: func(p map[string]any) {
				p["project_title"] = "demo"
				p["update_summary"] = nil
			},
		},
		{
			name: "optional typed nil is absent",
			mutate: func(p map[string]any) {
				p["project_title"] = "demo"
				p["meta"] = map[string]any(nil)
				p["mentions"] = []any(nil)
			},
		},
		{
			name: "required typed nil",
			mutate: func(p map[string]any) {
				p["project_title"] = (*string)(nil)
			},
			wantField: "project_title",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := basePayload()
			tt.mutate(p)

			out, err := schema.Validate(p)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.NotNil(t, out)
				assert.NotContains(t, out, "meta")
				return
			}

			var violation *SchemaViolation
			require.True(t, errors.As(err, &violation), "got %v", err)
			assert.Equal(t, tt.wantField, violation.Field)
			assert.Nil(t, out)
		})
	}
}

func TestSchema_ValidateNormalizes(t *testing.T) {
	schema := NewSchema(
		Required("project_title", KindString),
		Optional("update_summary", KindString, ""),
		Field{Name: "mentions", Kind: KindList, Elem: KindString, Default: []any{}},
	)

	in := basePayload()
	in["project_title"] = "demo"
	in["extra"] = "kept"

	out, err := schema.Validate(in)
	require.NoError(t, err)

	assert.Equal(t, float64(7), out[FieldActorID])
	assert.Equal(t, float64(42), out[FieldTargetID])
	assert.Equal(t, "", out["update_summary"])
	assert.Equal(t, []any{}, out["mentions"])
	assert.Equal(t, "kept", out["extra"])

	// The input is untouched.
	assert.Equal(t, 7, in[FieldActorID])
	_, ok := in["update_summary"]
	assert.False(t, ok)
}

func TestSchema_ValidateListOfStrings(t *testing.T) {
	schema := NewSchema(Field{Name: "mentions", Kind: KindList, Elem: KindString})

	in := basePayload()
	in["mentions"] = []string{"alice", "bob"}

	out, err := schema.Validate(in)
	require.NoError(t, err)
	assert.Equal(t, []any{"alice", "bob"}, out["mentions"])
	assert.Equal(t, []string{"alice", "bob"}, out.Strings("mentions"))
}

func TestNormalize(t *testing.T) {
	for _, raw := range []string{"project_star", "ProjectStar", "projectStar", "project-star", "PROJECT_STAR", " project_star "} {
		assert.Equal(t, ProjectStar, Normalize(raw), raw)
	}
	assert.Equal(t, UserLogin, Normalize("USER_LOGIN"))
}

func TestDecodePayload(t *testing.T) {
	var base BasePayload
	require.NoError(t, DecodePayload(map[string]any{
		FieldActorID:    float64(7),
		FieldTargetType: "project",
		FieldTargetID:   float64(42),
		"project_title": "ignored",
	}, &base))

	assert.Equal(t, BasePayload{ActorID: 7, TargetType: "project", TargetID: 42}, base)
}
