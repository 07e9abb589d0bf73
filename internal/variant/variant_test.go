package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractIsTotal(t *testing.T) {
	doc := Object(map[string]Value{
		"user": Object(map[string]Value{
			"name": String("ada"),
			"tags": Array([]Value{String("admin"), String("ops")}),
		}),
		"count": Number(3),
	})

	tests := []struct {
		name string
		path []PathStep
		want Value
	}{
		{
			name: "nested field",
			path: []PathStep{FieldStep("user"), FieldStep("name")},
			want: String("ada"),
		},
		{
			name: "array index",
			path: []PathStep{FieldStep("user"), FieldStep("tags"), IndexStep(1)},
			want: String("ops"),
		},
		{
			name: "missing field is null",
			path: []PathStep{FieldStep("user"), FieldStep("email")},
			want: Null(),
		},
		{
			name: "index out of range is null",
			path: []PathStep{FieldStep("user"), FieldStep("tags"), IndexStep(9)},
			want: Null(),
		},
		{
			name: "negative index is null",
			path: []PathStep{FieldStep("user"), FieldStep("tags"), IndexStep(-1)},
			want: Null(),
		},
		{
			name: "field access on scalar is null",
			path: []PathStep{FieldStep("count"), FieldStep("inner")},
			want: Null(),
		},
		{
			name: "descent through missing stays null",
			path: []PathStep{FieldStep("nope"), IndexStep(0), FieldStep("deep")},
			want: Null(),
		},
		{
			name: "empty path returns value",
			path: nil,
			want: doc,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(doc, tt.path)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestCast(t *testing.T) {
	tests := []struct {
		name    string
		value   Value
		target  Kind
		want    Value
		wantErr bool
	}{
		{name: "identity string", value: String("x"), target: KindString, want: String("x")},
		{name: "identity number", value: Number(4.5), target: KindNumber, want: Number(4.5)},
		{name: "numeric string to number", value: String("42.5"), target: KindNumber, want: Number(42.5)},
		{name: "number to string", value: Number(42.5), target: KindString, want: String("42.5")},
		{name: "integral number to string", value: Number(7), target: KindString, want: String("7")},
		{name: "non-numeric string to number fails", value: String("abc"), target: KindNumber, wantErr: true},
		{name: "bool to number fails", value: Bool(true), target: KindNumber, wantErr: true},
		{name: "number to bool fails", value: Number(1), target: KindBoolean, wantErr: true},
		{name: "object to string fails", value: Object(nil), target: KindString, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cast(tt.value, tt.target)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestSafeParse(t *testing.T) {
	valid := SafeParse(`{"a": [1, true, "x"], "b": null}`)
	require.Equal(t, KindObject, valid.Kind())
	assert.Equal(t, float64(1), valid.Field("a").Index(0).NumberValue())
	assert.True(t, valid.Field("b").IsNull())

	// Malformed input parses to null rather than failing.
	assert.True(t, SafeParse(`{"a": `).IsNull())
	assert.True(t, SafeParse(``).IsNull())
	assert.True(t, SafeParse(`{`).IsNull())
}

func TestCanonicalJSONRoundTrip(t *testing.T) {
	doc := Object(map[string]Value{
		"z": Number(1),
		"a": Array([]Value{Bool(false), Null()}),
	})

	data, err := doc.MarshalJSON()
	require.NoError(t, err)
	// Keys are emitted sorted so equal values share one encoding.
	assert.Equal(t, `{"a":[false,null],"z":1}`, string(data))

	var back Value
	require.NoError(t, back.UnmarshalJSON(data))
	assert.True(t, doc.Equal(back))
}
