package catalogue

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogueIsValid(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NotEmpty(t, c.Models)
	require.NotEmpty(t, c.Datasets)
	require.NoError(t, c.Validate())
	for _, d := range c.Datasets {
		require.Greater(t, d.Images, 0, d.Name)
	}
}

func TestValidate(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	valid := Model{Name: "DCGAN", Year: 2015, Category: CategoryGAN, Paper: "https://arxiv.org/abs/1511.06434"}

	var tests = []struct {
		name    string
		cat     Catalogue
		fields  []string
		isValid bool
	}{
		{name: "valid", cat: Catalogue{Models: []Model{valid}}, isValid: true},
		{
			name:   "empty name",
			cat:    Catalogue{Models: []Model{{Year: 2015, Category: CategoryGAN, Paper: valid.Paper}}},
			fields: []string{"name"},
		},
		{
			name: "duplicate name ignores case",
			cat: Catalogue{Models: []Model{valid, {
				Name: "dcgan", Year: 2015, Category: CategoryGAN, Paper: valid.Paper,
			}}},
			fields: []string{"name"},
		},
		{
			name: "model and dataset may share a name",
			cat: Catalogue{
				Models:   []Model{valid},
				Datasets: []Dataset{{Name: "DCGAN", Source: "https://example.com/dcgan", Images: 10}},
			},
			isValid: true,
		},
		{
			name:   "year in the future",
			cat:    Catalogue{Models: []Model{{Name: "X", Year: 2030, Category: CategoryGAN, Paper: valid.Paper}}},
			fields: []string{"year"},
		},
		{
			name:   "year too old",
			cat:    Catalogue{Models: []Model{{Name: "X", Year: 1900, Category: CategoryGAN, Paper: valid.Paper}}},
			fields: []string{"year"},
		},
		{
			name:   "relative paper link",
			cat:    Catalogue{Models: []Model{{Name: "X", Year: 2015, Category: CategoryGAN, Paper: "abs/1511.06434"}}},
			fields: []string{"paper"},
		},
		{
			name: "ftp implementation link",
			cat: Catalogue{Models: []Model{{
				Name: "X", Year: 2015, Category: CategoryGAN, Paper: valid.Paper, Implementation: "ftp://example.com/x",
			}}},
			fields: []string{"implementation"},
		},
		{
			name:   "unknown category",
			cat:    Catalogue{Models: []Model{{Name: "X", Year: 2015, Category: "diffusion", Paper: valid.Paper}}},
			fields: []string{"category"},
		},
		{
			name: "dataset without image count",
			cat: Catalogue{Datasets: []Dataset{{
				Name: "faces", Source: "https://example.com/faces",
			}}},
			fields: []string{"images"},
		},
		{
			name: "several problems at once",
			cat: Catalogue{Datasets: []Dataset{{
				Name: "faces", Source: "example.com",
			}}},
			fields: []string{"source", "images"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.cat.validateAt(now)
			if test.isValid {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			got := make([]string, len(verrs))
			for i, e := range verrs {
				got[i] = e.Field
			}
			require.Equal(t, test.fields, got)
		})
	}
}

func TestParseAndLoad(t *testing.T) {
	doc := `
title: t
models:
  - name: B
    year: 2017
    category: GAN
    paper: https://arxiv.org/abs/2
  - name: A
    year: 2017
    category: loss
    paper: https://arxiv.org/abs/1
  - name: C
    year: 2014
    category: gan
    paper: https://arxiv.org/abs/3
`
	path := filepath.Join(t.TempDir(), "catalogue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, CategoryGAN, c.Models[0].Category)

	sorted := c.Sorted()
	require.Equal(t, []string{"C", "A", "B"}, []string{sorted[0].Name, sorted[1].Name, sorted[2].Name})
	require.Equal(t, "B", c.Models[0].Name)

	groups := c.ByCategory()
	require.Len(t, groups, 2)
	require.Equal(t, CategoryGAN, groups[0].Category)
	require.Len(t, groups[0].Models, 2)
	require.Equal(t, CategoryLoss, groups[1].Category)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	_, err = Parse([]byte("models: {"))
	require.Error(t, err)
}

func TestRender(t *testing.T) {
	c := &Catalogue{
		Title:       "Anime GANs",
		Description: "Reading list.",
		Models: []Model{
			{Name: "DCGAN", Year: 2015, Category: CategoryGAN, Paper: "https://arxiv.org/abs/1511.06434", Implemented: true},
			{Name: "Adam", Year: 2014, Category: CategoryOptimizer, Paper: "https://arxiv.org/abs/1412.6980", Implementation: "https://github.com/example/adam"},
		},
		Datasets: []Dataset{
			{Name: "Faces", Source: "https://example.com/faces", Images: 100, Description: "crops"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, c.Render(&buf))
	out := buf.String()

	require.Contains(t, out, "# Anime GANs")
	require.Contains(t, out, "## GANs")
	require.Contains(t, out, "## Optimizers")
	require.Contains(t, out, "## Datasets")
	require.Contains(t, out, "[arXiv:1511.06434](https://arxiv.org/abs/1511.06434)")
	require.Contains(t, out, "[code](https://github.com/example/adam)")
	require.Contains(t, out, "**DCGAN**")
	require.Contains(t, out, "(#optimizers)")
	require.Contains(t, out, "2 models, 1 datasets, 100 images in total.")
	require.Less(t, strings.Index(out, "## GANs"), strings.Index(out, "## Optimizers"))
}

func TestPaperLabel(t *testing.T) {
	require.Equal(t, "arXiv:1406.2661", paperLabel("https://arxiv.org/abs/1406.2661"))
	require.Equal(t, "paper", paperLabel("https://openreview.net/forum?id=x"))
}

func TestCheckLinks(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/head-not-allowed":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := &Catalogue{
		Models: []Model{
			{Name: "A", Paper: srv.URL + "/ok", Implementation: srv.URL + "/missing"},
			{Name: "B", Paper: srv.URL + "/ok"},
		},
		Datasets: []Dataset{
			{Name: "D", Source: srv.URL + "/head-not-allowed"},
		},
	}

	opts := DefaultLinkCheckOptions()
	opts.Concurrency = 2
	results, err := c.CheckLinks(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, results, 4)

	require.Equal(t, "A", results[0].Owner)
	require.True(t, results[0].OK())
	require.Equal(t, "implementation", results[1].Field)
	require.Equal(t, http.StatusNotFound, results[1].Status)
	require.False(t, results[1].OK())
	require.Equal(t, "B", results[2].Owner)
	require.True(t, results[2].OK())
	require.Equal(t, "D", results[3].Owner)
	require.Equal(t, http.StatusOK, results[3].Status)

	// /ok once, /missing once, /head-not-allowed HEAD then GET
	require.Equal(t, int32(4), atomic.LoadInt32(&hits))
}

func TestCheckLinksKeepsCallerClient(t *testing.T) {
	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.UserAgent())
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := resty.New()
	opts := DefaultLinkCheckOptions()
	opts.Client = client
	opts.UserAgent = "catalogue-test/2.0"
	c := &Catalogue{Models: []Model{{Name: "A", Paper: srv.URL + "/ok"}}}
	results, err := c.CheckLinks(context.Background(), opts)
	require.NoError(t, err)
	require.True(t, results[0].OK())
	require.Equal(t, "catalogue-test/2.0", agent.Load())
	require.Empty(t, client.Header.Get("User-Agent"))
}

func TestCheckLinksCancelled(t *testing.T) {
	c := &Catalogue{Models: []Model{{Name: "A", Paper: "http://127.0.0.1:1/x"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.CheckLinks(ctx, DefaultLinkCheckOptions())
	require.ErrorIs(t, err, context.Canceled)
}
