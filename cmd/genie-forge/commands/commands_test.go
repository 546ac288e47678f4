package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/config"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/engine"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/remote"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/stores"
)

// fakeWorkspace serves the spaces API from memory.
type fakeWorkspace struct {
	mu     sync.Mutex
	next   int
	spaces map[string]map[string]any
}

func newFakeWorkspace(t *testing.T) (*fakeWorkspace, *httptest.Server) {
	t.Helper()
	ws := &fakeWorkspace{spaces: make(map[string]map[string]any)}
	srv := httptest.NewServer(ws)
	t.Cleanup(srv.Close)
	return ws, srv
}

func (ws *fakeWorkspace) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, remote.SpacesPath), "/")
	switch {
	case r.Method == http.MethodPost && id == "":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		ws.next++
		newID := fmt.Sprintf("space-%d", ws.next)
		ws.spaces[newID] = map[string]any{
			"space_id":     newID,
			"title":        body["title"],
			"warehouse_id": body["warehouse_id"],
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"space_id": newID})
	case r.Method == http.MethodGet && id == "":
		list := []map[string]any{}
		for _, sp := range ws.spaces {
			list = append(list, sp)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"spaces": list})
	case r.Method == http.MethodGet:
		sp, ok := ws.spaces[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error_code":"RESOURCE_DOES_NOT_EXIST","message":"not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(sp)
	case r.Method == http.MethodPatch:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if sp, ok := ws.spaces[id]; ok {
			sp["title"] = body["title"]
		}
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodDelete:
		delete(ws.spaces, id)
		_, _ = w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (ws *fakeWorkspace) titles() map[string]bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	titles := make(map[string]bool)
	for _, sp := range ws.spaces {
		titles[fmt.Sprint(sp["title"])] = true
	}
	return titles
}

const testSpaces = `spaces:
  - space_id: sales
    title: Sales
    warehouse_id: ${warehouse_id}
    data_sources:
      tables:
        - identifier: main.sales.orders
  - space_id: finance
    title: Finance
    warehouse_id: ${warehouse_id}
`

// setupProject creates a project in a temp working directory bound to srv.
func setupProject(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DATABRICKS_HOST", srv.URL)
	t.Setenv("DATABRICKS_TOKEN", "dapi-test-token")

	files := map[string]string{
		"genie-forge.yaml": `
project_name: test
protected_environments: [prod]
environments:
  dev:
    warehouse_id: wh-1
  prod:
    warehouse_id: wh-2
`,
		"conf/spaces/spaces.yaml": testSpaces,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand("test", "none", "today")
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestWorkflow_PlanApplyDestroy(t *testing.T) {
	ws, srv := newFakeWorkspace(t)
	setupProject(t, srv)

	out, err := execute(t, "plan")
	if err != nil {
		t.Fatalf("plan failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Plan: 2 to create, 0 to update, 0 to destroy, 0 unchanged") {
		t.Errorf("unexpected plan output:\n%s", out)
	}

	out, err = execute(t, "apply")
	if err != nil {
		t.Fatalf("apply failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 created, 0 updated, 0 unchanged, 0 failed") {
		t.Errorf("unexpected apply output:\n%s", out)
	}
	if titles := ws.titles(); !titles["Sales"] || !titles["Finance"] {
		t.Errorf("remote spaces = %v", titles)
	}

	out, err = execute(t, "plan")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if !strings.Contains(out, "2 unchanged") {
		t.Errorf("second plan should be a no-op:\n%s", out)
	}

	out, err = execute(t, "status", "--json")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	var status engine.EnvironmentStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("status output is not JSON: %v\n%s", err, out)
	}
	if len(status.Spaces) != 2 || status.Spaces[0].LogicalID != "finance" {
		t.Errorf("status = %+v", status)
	}

	if out, err := execute(t, "drift"); err != nil {
		t.Errorf("no drift expected: %v\n%s", err, out)
	}

	out, err = execute(t, "destroy", "--target", "sales", "--force")
	if err != nil {
		t.Fatalf("destroy failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 destroyed, 0 failed") {
		t.Errorf("unexpected destroy output:\n%s", out)
	}
	if ws.titles()["Sales"] {
		t.Error("Sales should be deleted remotely")
	}

	out, err = execute(t, "history", "--json")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var runs []stores.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("history output is not JSON: %v\n%s", err, out)
	}
	kinds := make(map[string]bool)
	for _, r := range runs {
		kinds[r.Kind] = true
	}
	for _, k := range []string{"apply", "drift", "destroy"} {
		if !kinds[k] {
			t.Errorf("history is missing a %s run: %v", k, kinds)
		}
	}
}

func TestApply_DryRunChangesNothing(t *testing.T) {
	ws, srv := newFakeWorkspace(t)
	dir := setupProject(t, srv)

	out, err := execute(t, "apply", "--dry-run")
	if err != nil {
		t.Fatalf("apply failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "would be created") || !strings.Contains(out, "Dry run") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if len(ws.titles()) != 0 {
		t.Error("dry run must not call the workspace")
	}
	if _, err := os.Stat(filepath.Join(dir, ".genie-forge.json")); err == nil {
		t.Error("dry run must not write state")
	}
}

func TestDestroy_ProtectedEnvironmentDenied(t *testing.T) {
	_, srv := newFakeWorkspace(t)
	setupProject(t, srv)

	if _, err := execute(t, "apply", "--env", "prod"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	_, err := execute(t, "destroy", "--env", "prod", "--target", "*", "--force")
	if err == nil {
		t.Fatal("destroy in a protected environment should fail")
	}
	if engine.ErrorCodeOf(err) != engine.ErrCodePolicyDenied {
		t.Errorf("expected a policy denial, got %v", err)
	}
}

func TestDestroy_RequiresConfirmation(t *testing.T) {
	ws, srv := newFakeWorkspace(t)
	setupProject(t, srv)

	if _, err := execute(t, "apply"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	out, err := execute(t, "destroy", "--target", "*")
	if err != nil {
		t.Fatalf("destroy failed: %v", err)
	}
	if !strings.Contains(out, "Destroy cancelled.") {
		t.Errorf("expected cancellation:\n%s", out)
	}
	if len(ws.titles()) != 2 {
		t.Error("nothing should be deleted without confirmation")
	}
}

func TestImport_WritesConfigAndTracksSpace(t *testing.T) {
	ws, srv := newFakeWorkspace(t)
	dir := setupProject(t, srv)
	ws.spaces["01ef"] = map[string]any{
		"space_id":     "01ef",
		"title":        "Marketing Funnel",
		"warehouse_id": "wh-1",
	}

	out, err := execute(t, "import", "--pattern", "marketing*", "--output-dir", "conf/imported")
	if err != nil {
		t.Fatalf("import failed: %v\n%s", err, out)
	}

	path := filepath.Join(dir, "conf", "imported", "marketing_funnel.yaml")
	parsed, err := config.NewParser().Parse(context.Background(), path, "dev", nil)
	if err != nil {
		t.Fatalf("imported file does not parse: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Title != "Marketing Funnel" {
		t.Errorf("imported config = %+v", parsed)
	}

	out, err = execute(t, "state", "show", "marketing_funnel", "--json")
	if err != nil {
		t.Fatalf("state show failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"databricks_space_id": "01ef"`) {
		t.Errorf("state entry missing remote id:\n%s", out)
	}

	if _, err := execute(t, "import", "01ef", "--pattern", "x"); err == nil {
		t.Error("id and --pattern together should be rejected")
	}
}

func TestImport_RefusesTrackedSpaceWithoutForce(t *testing.T) {
	ws, srv := newFakeWorkspace(t)
	dir := setupProject(t, srv)

	if _, err := execute(t, "apply"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	ws.spaces["r2"] = map[string]any{
		"space_id":     "r2",
		"title":        "Sales Copy",
		"warehouse_id": "wh-1",
	}

	trackedRemoteID := func() string {
		t.Helper()
		out, err := execute(t, "state", "show", "sales", "--json")
		if err != nil {
			t.Fatalf("state show failed: %v\n%s", err, out)
		}
		var entry struct {
			RemoteID string `json:"databricks_space_id"`
		}
		if err := json.Unmarshal([]byte(out), &entry); err != nil {
			t.Fatalf("state show output is not JSON: %v\n%s", err, out)
		}
		return entry.RemoteID
	}
	original := trackedRemoteID()

	out, err := execute(t, "import", "r2", "--as", "sales")
	if err == nil {
		t.Fatalf("importing over a tracked space should fail:\n%s", out)
	}
	if !strings.Contains(out, "already exists in state") {
		t.Errorf("expected the state conflict to be reported:\n%s", out)
	}
	if got := trackedRemoteID(); got != original {
		t.Errorf("tracked remote id changed to %s", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "conf", "spaces", "sales.yaml")); err == nil {
		t.Error("no space file should be written on conflict")
	}

	if out, err := execute(t, "import", "r2", "--as", "sales", "--force", "-o", "conf/imported"); err != nil {
		t.Fatalf("forced import failed: %v\n%s", err, out)
	}
	if got := trackedRemoteID(); got != "r2" {
		t.Errorf("forced import should retarget sales, got %s", got)
	}
}

func TestBulkCreateAndDelete(t *testing.T) {
	ws, srv := newFakeWorkspace(t)
	setupProject(t, srv)

	out, err := execute(t, "bulk", "create", "--parallel", "2")
	if err != nil {
		t.Fatalf("bulk create failed: %v\n%s", err, out)
	}
	if len(ws.titles()) != 2 {
		t.Fatalf("expected 2 remote spaces, got %v", ws.titles())
	}

	out, err = execute(t, "bulk", "delete", "--pattern", "*")
	if err != nil {
		t.Fatalf("bulk delete failed: %v\n%s", err, out)
	}
	if len(ws.titles()) != 0 {
		t.Errorf("expected no remote spaces, got %v", ws.titles())
	}
}

func TestValidate_ReportsProblems(t *testing.T) {
	_, srv := newFakeWorkspace(t)
	dir := setupProject(t, srv)

	if out, err := execute(t, "validate"); err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}

	bad := filepath.Join(dir, "conf", "spaces", "bad.yaml")
	if err := os.WriteFile(bad, []byte("spaces:\n  - title: No id\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "validate")
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(out, "space_id") {
		t.Errorf("expected the missing field to be reported:\n%s", out)
	}
}

func TestInit_CreatesProject(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if out, err := execute(t, "init"); err != nil {
		t.Fatalf("init failed: %v\n%s", err, out)
	}
	for _, f := range []string{"genie-forge.yaml", "conf/spaces/example.yaml", "conf/environments/dev.yaml", ".genie-forge/history.db"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("%s not created: %v", f, err)
		}
	}

	out, err := execute(t, "init")
	if err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	if !strings.Contains(out, "Kept existing") {
		t.Errorf("second init should keep files:\n%s", out)
	}
}

func TestSelectTargets(t *testing.T) {
	spaces := []*config.SpaceConfig{{LogicalID: "a"}, {LogicalID: "b"}, {LogicalID: "c"}}

	got, err := selectTargets(spaces, []string{"c", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].LogicalID != "a" || got[1].LogicalID != "c" {
		t.Errorf("selection should keep input order, got %v", got)
	}

	if _, err := selectTargets(spaces, []string{"a", "zz"}); err == nil || !strings.Contains(err.Error(), "zz") {
		t.Errorf("unknown target should be reported, got %v", err)
	}
}

func TestUniqueID(t *testing.T) {
	used := map[string]bool{"sales": true, "sales_2": true}
	if got := uniqueID("sales", used); got != "sales_3" {
		t.Errorf("uniqueID = %s", got)
	}
	if got := uniqueID("hr", used); got != "hr" {
		t.Errorf("uniqueID = %s", got)
	}
}
