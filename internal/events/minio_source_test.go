package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseObjectKey(t *testing.T) {
	const id = "0f8fad5b-d9cb-469f-a165-70867728950e"
	tests := []struct {
		name      string
		objectKey string
		wantID    string
		wantErr   bool
	}{
		{name: "valid", objectKey: "templates/" + id + ".docx", wantID: id},
		{name: "leading slash", objectKey: "/templates/" + id + ".docx", wantID: id},
		{name: "output object", objectKey: "outputs/" + id + ".docx", wantErr: true},
		{name: "nested", objectKey: "templates/x/" + id + ".docx", wantErr: true},
		{name: "not a uuid", objectKey: "templates/brochure.docx", wantErr: true},
		{name: "wrong suffix", objectKey: "templates/" + id + ".pdf", wantErr: true},
		{name: "empty", objectKey: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseObjectKey(tc.objectKey, "templates/", ".docx")
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantID, got)
		})
	}
}

func TestDecodeObjectKey(t *testing.T) {
	decoded, err := decodeObjectKey("templates%2F0f8fad5b-d9cb-469f-a165-70867728950e.docx")
	require.NoError(t, err)
	require.Equal(t, "templates/0f8fad5b-d9cb-469f-a165-70867728950e.docx", decoded)

	_, err = decodeObjectKey("%20")
	require.Error(t, err)
}
