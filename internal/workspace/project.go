package workspace

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	aierrors "aienv/internal/errors"
	"aienv/pkg/environment"
)

//go:embed templates/*.tmpl
var templates embed.FS

const (
	MainFile          = "main.py"
	StreamlitDemoFile = "streamlit_demo.py"
	GitIgnoreFile     = ".gitignore"
)

var ErrProjectExists = errors.New("project directory already exists")

// ProjectOptions describes a starter project.
type ProjectOptions struct {
	Name string
	// Parent defaults to the installation's Projects directory.
	Parent string
	Git    bool
	// Remote, when set, is pushed to after the initial commit and implies Git.
	Remote string
	DryRun bool
}

// Project is the outcome of Scaffold.
type Project struct {
	Dir    string
	Files  []string
	Commit string
	Remote string
}

type templateData struct {
	Title     string
	EnvName   string
	OllamaURL string
	Model     string
}

// Scaffold creates a starter project with the integration example, the
// Streamlit demo and the workspace configuration. With Git set, the project
// becomes a repository holding one commit. DryRun only reports what would be
// written.
func (g *Generator) Scaffold(opts ProjectOptions, vcs VersionControl) (*Project, error) {
	if err := validateName(opts.Name); err != nil {
		return nil, aierrors.NewConfigError(
			"Invalid project name",
			err.Error(),
			"Use a plain directory name such as my_project",
			err,
		)
	}

	parent := opts.Parent
	if parent == "" {
		parent = g.inst.ProjectsDir()
	}
	dir := filepath.Join(parent, opts.Name)

	if _, err := os.Stat(dir); err == nil {
		return nil, aierrors.NewFileSystemError(
			fmt.Sprintf("Cannot create project '%s'", opts.Name),
			fmt.Sprintf("%s already exists", dir),
			"Pick another name or remove the existing directory",
			fmt.Errorf("%w: %s", ErrProjectExists, dir),
		)
	}

	files, err := g.projectFiles(opts.Name)
	if err != nil {
		return nil, err
	}

	if opts.Remote != "" {
		opts.Git = true
	}

	project := &Project{Dir: dir}
	if opts.DryRun {
		return project, g.dryRun(project, files, opts)
	}

	for _, rel := range sortedKeys(files) {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := writeFile(path, files[rel]); err != nil {
			return nil, aierrors.NewFileSystemError(
				fmt.Sprintf("Failed to create project '%s'", opts.Name),
				err.Error(),
				"Check that the installation drive is writable",
				err,
			)
		}
		project.Files = append(project.Files, path)
	}
	g.console.PrintSuccess(fmt.Sprintf("Project '%s' created at %s", opts.Name, dir))

	if opts.Git {
		if vcs == nil {
			vcs = NewGitRepository()
		}
		hash, err := vcs.InitRepository(dir, "Initial commit - scaffolded by aienv")
		if err != nil {
			return project, aierrors.NewCommandError(
				fmt.Sprintf("Project '%s' was created but git initialisation failed", opts.Name),
				err.Error(),
				"Run 'git init' in the project directory manually",
				err,
			)
		}
		project.Commit = hash
		g.console.PrintSuccess(fmt.Sprintf("Initialized git repository (%s)", shortHash(hash)))
	}

	if opts.Remote != "" {
		if err := vcs.Publish(dir, opts.Remote); err != nil {
			return project, aierrors.NewCommandError(
				fmt.Sprintf("Project '%s' was committed but could not be pushed", opts.Name),
				err.Error(),
				fmt.Sprintf("Check the remote URL and set %s if the host needs a token", TokenEnv),
				err,
			)
		}
		project.Remote = opts.Remote
		g.console.PrintSuccess(fmt.Sprintf("Pushed to %s", opts.Remote))
	}

	return project, nil
}

// EnsureStreamlitDemo writes the demo app into dir unless one is already
// there, and returns its path.
func (g *Generator) EnsureStreamlitDemo(dir string) (string, error) {
	path := filepath.Join(dir, StreamlitDemoFile)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	data, err := g.render(StreamlitDemoFile, "AI Environment Demo")
	if err != nil {
		return "", err
	}
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func (g *Generator) projectFiles(name string) (map[string][]byte, error) {
	files, err := g.Files()
	if err != nil {
		return nil, err
	}

	for _, file := range []string{MainFile, StreamlitDemoFile} {
		data, err := g.render(file, name)
		if err != nil {
			return nil, err
		}
		files[file] = data
	}
	files[GitIgnoreFile] = []byte("__pycache__/\n*.pyc\n.ipynb_checkpoints/\nmlruns/\nlogs/\n")
	return files, nil
}

func (g *Generator) render(file, title string) ([]byte, error) {
	tmpl, err := template.ParseFS(templates, "templates/"+file+".tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to load template for %s: %w", file, err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, templateData{
		Title:     title,
		EnvName:   g.envName,
		OllamaURL: g.ollamaURL,
		Model:     g.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", file, err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) dryRun(project *Project, files map[string][]byte, opts ProjectOptions) error {
	g.console.Println(fmt.Sprintf("DRY RUN: Would create directory: %s", project.Dir))
	for _, rel := range sortedKeys(files) {
		path := filepath.Join(project.Dir, filepath.FromSlash(rel))
		g.console.Println(fmt.Sprintf("DRY RUN: Would create file: %s", path))
		project.Files = append(project.Files, path)
	}
	if opts.Git {
		g.console.Println(fmt.Sprintf("DRY RUN: Would initialize git repository in %s", project.Dir))
	}
	if opts.Remote != "" {
		g.console.Println(fmt.Sprintf("DRY RUN: Would push to %s", opts.Remote))
	}
	return nil
}

// validateName rejects names that would escape the parent directory.
func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("project name is empty")
	}
	if !environment.IsDirName(name) {
		return fmt.Errorf("project name must be a single directory name: %s", name)
	}
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
