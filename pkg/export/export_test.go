package export

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterEscapesEmbeddedQuotes(t *testing.T) {
	exporter := NewCSVExporter()
	data := Dataset{
		Headers: []string{"Name", "Quote"},
		Rows: []map[string]string{
			{"Name": "Ada", "Quote": `He said "hi"`},
			{"Name": "Grace", "Quote": "plain"},
		},
	}

	out, err := exporter.Render(data)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	require.Len(t, lines, 3, "header plus one line per record")
	assert.Equal(t, "Name,Quote", lines[0])
	assert.Equal(t, `Ada,"He said ""hi"""`, lines[1])
	assert.Equal(t, "Grace,plain", lines[2])
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	exporter := NewCSVExporter()
	_, err := exporter.Render(Dataset{})
	require.Error(t, err)
}

func TestJSONExporterRendersRows(t *testing.T) {
	exporter := NewJSONExporter()
	data := Dataset{
		Headers: []string{"Full Name", "Graduation Year"},
		Rows: []map[string]string{
			{"Full Name": "Ada Obi", "Graduation Year": "2018"},
			{"Full Name": "Tunde Bello", "Graduation Year": "2020"},
		},
	}

	out, err := exporter.Render(data)
	require.NoError(t, err)

	var decoded []map[string]string
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "Ada Obi", decoded[0]["Full Name"])
	assert.Equal(t, "2020", decoded[1]["Graduation Year"])
}

func TestJSONExporterEmptyDataset(t *testing.T) {
	exporter := NewJSONExporter()
	out, err := exporter.Render(Dataset{Headers: []string{"Name"}})
	require.NoError(t, err)

	var decoded []map[string]string
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Empty(t, decoded)
}

func TestPDFExporterProducesDocument(t *testing.T) {
	exporter := NewPDFExporter()
	data := Dataset{
		Headers: []string{"Full Name", "Branch"},
		Rows:    []map[string]string{{"Full Name": "Ada Obi", "Branch": "Lagos"}},
	}

	out, err := exporter.Render(data, "Alumni Directory")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF"))
}
