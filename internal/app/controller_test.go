package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aienv/internal/activator"
	"aienv/internal/launcher"
	"aienv/internal/ollama"
	"aienv/internal/ui"
	"aienv/pkg/environment"
)

type fakeStarter struct {
	specs []launcher.StartSpec
}

func (f *fakeStarter) Start(spec launcher.StartSpec) (int, error) {
	f.specs = append(f.specs, spec)
	return 4242, nil
}

type fakeProcs struct {
	alive map[int]bool
}

func (f *fakeProcs) Alive(pid int) bool {
	return f.alive[pid]
}

func (f *fakeProcs) Terminate(pid int) error {
	delete(f.alive, pid)
	return nil
}

type fakeBrowser struct{}

func (fakeBrowser) Open(string) error {
	return nil
}

type controllerFixture struct {
	controller *Controller
	inst       *environment.Installation
	starter    *fakeStarter
	procs      *fakeProcs
	out        *bytes.Buffer
}

func newControllerFixture(t *testing.T, client *ollama.Client) controllerFixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake executables need posix permissions")
	}
	root := filepath.Join(t.TempDir(), environment.InstallDirName)
	inst := &environment.Installation{Root: root, Kind: environment.LayoutDirect, Layout: environment.PosixLayout}
	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(bin, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "streamlit"), []byte{}, 0755))

	rt := environment.NewRuntime()
	rt.PrependPath(bin)
	rt.Set(environment.VarActiveEnv, "AI2025")
	rt.Set(environment.VarInstallRoot, root)

	var out bytes.Buffer
	a := New(Options{
		Config:     testConfig(),
		Console:    ui.NewConsoleWithWriters(&out, &out, false),
		Runner:     NewMockRunner(),
		Containers: &fakeFactory{},
	})
	session := &Session{
		RunID:        "run-1",
		Config:       a.Config(),
		Installation: inst,
		Runtime:      rt,
		Activation:   &activator.Result{EnvName: "AI2025"},
	}

	starter := &fakeStarter{}
	procs := &fakeProcs{alive: map[int]bool{4242: true}}
	c, err := a.NewController(session, ControllerOptions{
		Starter:   starter,
		Processes: procs,
		Browser:   fakeBrowser{},
		Ollama:    client,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return controllerFixture{controller: c, inst: inst, starter: starter, procs: procs, out: &out}
}

func TestNewController_RequiresActivation(t *testing.T) {
	a := New(Options{Config: testConfig(), Console: ui.NewConsoleWithWriters(io.Discard, io.Discard, false), Containers: &fakeFactory{}})

	_, err := a.NewController(&Session{Runtime: environment.NewRuntime()}, ControllerOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not activated")
}

func TestController_LaunchStreamlitCreatesDemo(t *testing.T) {
	f := newControllerFixture(t, nil)
	demo := filepath.Join(f.inst.ProjectsDir(), "streamlit_demo.py")

	err := f.controller.Launch(context.Background(), "streamlit", launcher.LaunchOptions{NoBrowser: true})

	require.NoError(t, err)
	assert.FileExists(t, demo)
	require.Len(t, f.starter.specs, 1)
	assert.Contains(t, f.starter.specs[0].Args, demo)
	assert.Contains(t, f.out.String(), "Streamlit Demo launched successfully")
}

func TestController_LaunchUnknownApp(t *testing.T) {
	f := newControllerFixture(t, nil)

	err := f.controller.Launch(context.Background(), "notebook", launcher.LaunchOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, launcher.ErrUnknownApp))
	assert.Empty(t, f.starter.specs)
}

func TestController_ListAndStopProcesses(t *testing.T) {
	f := newControllerFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.controller.ListProcesses(ctx))
	assert.Contains(t, f.out.String(), "No background processes")

	require.NoError(t, f.controller.Launch(ctx, "streamlit", launcher.LaunchOptions{NoBrowser: true}))
	f.out.Reset()
	require.NoError(t, f.controller.ListProcesses(ctx))

	table := f.out.String()
	for _, want := range []string{"NAME", "streamlit", "4242", "8501", "running"} {
		assert.Contains(t, table, want)
	}

	require.NoError(t, f.controller.StopProcess(ctx, "streamlit"))
	assert.False(t, f.procs.alive[4242])

	f.out.Reset()
	require.NoError(t, f.controller.ListProcesses(ctx))
	assert.Contains(t, f.out.String(), "No background processes")
}

func TestController_PruneProcesses(t *testing.T) {
	f := newControllerFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.controller.Launch(ctx, "streamlit", launcher.LaunchOptions{NoBrowser: true}))
	delete(f.procs.alive, 4242)

	require.NoError(t, f.controller.PruneProcesses(ctx))

	assert.Contains(t, f.out.String(), "Removed 1 exited process(es) from the registry")
}

func TestController_ConfigureWorkspaceDefaultsToProjects(t *testing.T) {
	f := newControllerFixture(t, nil)

	require.NoError(t, f.controller.ConfigureWorkspace(""))

	assert.FileExists(t, filepath.Join(f.inst.ProjectsDir(), ".vscode", "settings.json"))
	assert.FileExists(t, filepath.Join(f.inst.ProjectsDir(), ".env"))
}

func TestController_EnvScript(t *testing.T) {
	f := newControllerFixture(t, nil)

	script, err := f.controller.EnvScript(environment.ShellBash)

	require.NoError(t, err)
	assert.Contains(t, script, "export CONDA_DEFAULT_ENV='AI2025'")
	assert.Contains(t, script, "export PATH='"+filepath.Join(f.inst.Root, "bin"))
}

func TestController_ModelsAndQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]string{{"name": "phi:2.7b"}, {"name": "llama3:8b"}},
			})
		case "/api/generate":
			var req map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "phi:2.7b", req["model"])
			_ = json.NewEncoder(w).Encode(map[string]any{"response": "Hello from phi"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	f := newControllerFixture(t, ollama.NewClient(server.URL, ollama.WithModel("phi:2.7b")))
	ctx := context.Background()

	require.NoError(t, f.controller.ListModels(ctx))
	output := f.out.String()
	assert.Contains(t, output, "Ollama server is running")
	assert.Contains(t, output, "Available models: 2")
	assert.Contains(t, output, "  - llama3:8b")

	answer := f.controller.Query(ctx, "Say hello", "")
	assert.Equal(t, "Hello from phi", answer)
	assert.Contains(t, f.out.String(), "Asking phi:2.7b...")
}

func TestController_QueryUnreachableServer(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	f := newControllerFixture(t, ollama.NewClient(server.URL))

	answer := f.controller.Query(context.Background(), "Say hello", "phi:2.7b")

	assert.True(t, len(answer) > len(ollama.ErrorPrefix))
	assert.Equal(t, ollama.ErrorPrefix, answer[:len(ollama.ErrorPrefix)])
	assert.Error(t, f.controller.ListModels(context.Background()))
}
