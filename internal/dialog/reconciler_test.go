package dialog

import (
	"context"
	"testing"
)

func newTestReconciler(a *fakeAuthority) *Reconciler {
	return NewReconciler(a, PolicyTarget{ChannelID: 7, CallID: "call-1", UserID: 1}, 0, nopLogger())
}

func TestReconcilerUnchangedSkips(t *testing.T) {
	a := newFakeAuthority()
	r := newTestReconciler(a)
	r.Observe(false)

	if got := r.OnClose(context.Background()); got != StateSkipped {
		t.Errorf("Expected skipped, got %s", got)
	}
	r.Wait()
	if a.commitCount() != 0 || a.checks != 0 {
		t.Errorf("Expected no authority contact, got %d checks %d commits", a.checks, a.commitCount())
	}
}

func TestReconcilerCommitsChangeOnce(t *testing.T) {
	a := newFakeAuthority()
	r := newTestReconciler(a)
	r.Observe(false)
	r.Edit(true)

	if got := r.OnClose(context.Background()); got != StateCommitted {
		t.Fatalf("Expected committed, got %s", got)
	}
	if got := r.OnClose(context.Background()); got != StateCommitted {
		t.Errorf("Second close should report committed, got %s", got)
	}
	r.Wait()

	if len(a.commits) != 1 || a.commits[0] != true {
		t.Errorf("Expected exactly one commit of true, got %v", a.commits)
	}
	if a.checks != 1 {
		t.Errorf("Expected one precondition check, got %d", a.checks)
	}
}

func TestReconcilerLastEditWins(t *testing.T) {
	tests := []struct {
		name    string
		origin  bool
		edits   []bool
		want    ReconcileState
		commits []bool
	}{
		{"toggled back", false, []bool{true, false}, StateSkipped, nil},
		{"toggled twice to on", false, []bool{true, false, true}, StateCommitted, []bool{true}},
		{"turned off", true, []bool{false}, StateCommitted, []bool{false}},
		{"no edits", true, nil, StateSkipped, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newFakeAuthority()
			r := newTestReconciler(a)
			r.Observe(tt.origin)
			for _, v := range tt.edits {
				r.Edit(v)
			}
			if got := r.OnClose(context.Background()); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
			r.Wait()
			if len(a.commits) != len(tt.commits) {
				t.Fatalf("Expected commits %v, got %v", tt.commits, a.commits)
			}
			for i := range tt.commits {
				if a.commits[i] != tt.commits[i] {
					t.Errorf("Expected commits %v, got %v", tt.commits, a.commits)
				}
			}
		})
	}
}

func TestReconcilerRevokedPermissionSkips(t *testing.T) {
	a := newFakeAuthority()
	a.checkErr = ErrNotAllowed
	r := newTestReconciler(a)
	r.Observe(false)
	r.Edit(true)

	if got := r.OnClose(context.Background()); got != StateSkipped {
		t.Errorf("Expected skipped, got %s", got)
	}
	r.Wait()
	if a.commitCount() != 0 {
		t.Errorf("Expected no commit, got %v", a.commits)
	}
}

func TestReconcilerCommitFailureIsAbsorbed(t *testing.T) {
	a := newFakeAuthority()
	a.commitErr = errRemote
	r := newTestReconciler(a)
	r.Observe(true)
	r.Edit(false)

	if got := r.OnClose(context.Background()); got != StateCommitted {
		t.Errorf("Expected committed, got %s", got)
	}
	r.Wait()
	r.OnClose(context.Background())
	r.Wait()
	if a.commitCount() != 1 {
		t.Errorf("Failed commit must not be retried, got %d attempts", a.commitCount())
	}
}

func TestReconcilerIgnoresEditsAfterClose(t *testing.T) {
	a := newFakeAuthority()
	r := newTestReconciler(a)
	r.Observe(false)
	r.OnClose(context.Background())

	r.Edit(true)
	r.Observe(true)
	if r.Current() {
		t.Error("Edit after close should be ignored")
	}
	if got := r.State(); got != StateSkipped {
		t.Errorf("Expected skipped, got %s", got)
	}
}
