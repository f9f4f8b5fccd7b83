package model

// Default Hugging Face source of the Supertonic model files.
const (
	DefaultRepo     = "Supertone/supertonic"
	DefaultRevision = "main"
)

type Manifest struct {
	Repo  string      `json:"repo"`
	Files []ModelFile `json:"files"`
}

type ModelFile struct {
	Filename string `json:"filename"`
	Revision string `json:"revision"`
	// SHA256 is optional; when empty the checksum is taken from HF metadata
	// or recorded from the downloaded bytes.
	SHA256 string `json:"sha256"`
}

// NewManifest lists every model file of repo at revision.
func NewManifest(repo, revision string) Manifest {
	if repo == "" {
		repo = DefaultRepo
	}

	if revision == "" {
		revision = DefaultRevision
	}

	files := Files()
	m := Manifest{Repo: repo, Files: make([]ModelFile, 0, len(files))}

	for _, f := range files {
		m.Files = append(m.Files, ModelFile{Filename: f, Revision: revision})
	}

	return m
}
