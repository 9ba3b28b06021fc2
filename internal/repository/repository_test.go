package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pccr10001/groupcall/internal/model"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestCallSetJoinMuted(t *testing.T) {
	db := openTestDB(t)
	repo := NewCallRepository(db)
	ctx := context.Background()

	call := &model.GroupCall{ID: "c1", ChannelID: 1, Active: true, CanChangeJoinMuted: true, StartedAt: time.Now()}
	if err := repo.Create(ctx, call); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	changed, err := repo.SetJoinMuted(ctx, "c1", true)
	if err != nil || !changed {
		t.Fatalf("Expected change, got %v, %v", changed, err)
	}
	changed, err = repo.SetJoinMuted(ctx, "c1", true)
	if err != nil || changed {
		t.Errorf("Same value should not change the row, got %v, %v", changed, err)
	}

	got, err := repo.FindByID(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.JoinMuted {
		t.Error("JoinMuted was not stored")
	}
}

func TestCallSetJoinMutedRespectsCallState(t *testing.T) {
	db := openTestDB(t)
	repo := NewCallRepository(db)
	ctx := context.Background()

	locked := &model.GroupCall{ID: "locked", ChannelID: 1, Active: true, StartedAt: time.Now()}
	if err := repo.Create(ctx, locked); err != nil {
		t.Fatal(err)
	}
	if changed, _ := repo.SetJoinMuted(ctx, "locked", true); changed {
		t.Error("Call without the capability must not change")
	}

	ended := &model.GroupCall{ID: "ended", ChannelID: 1, Active: true, CanChangeJoinMuted: true, StartedAt: time.Now()}
	if err := repo.Create(ctx, ended); err != nil {
		t.Fatal(err)
	}
	if ok, err := repo.End(ctx, "ended", time.Now()); err != nil || !ok {
		t.Fatalf("End failed: %v, %v", ok, err)
	}
	if ok, _ := repo.End(ctx, "ended", time.Now()); ok {
		t.Error("Ending twice should be a no-op")
	}
	if changed, _ := repo.SetJoinMuted(ctx, "ended", true); changed {
		t.Error("Ended call must not change")
	}

	got, err := repo.FindByID(ctx, "ended")
	if err != nil {
		t.Fatal(err)
	}
	if got.Active || got.EndedAt == nil {
		t.Errorf("Expected ended call, got %+v", got)
	}
}

func TestCallFindActiveByChannel(t *testing.T) {
	db := openTestDB(t)
	repo := NewCallRepository(db)
	ctx := context.Background()

	if _, err := repo.FindActiveByChannel(ctx, 3); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	repo.Create(ctx, &model.GroupCall{ID: "old", ChannelID: 3, StartedAt: time.Now().Add(-time.Hour)})
	repo.Create(ctx, &model.GroupCall{ID: "live", ChannelID: 3, Active: true, StartedAt: time.Now()})

	got, err := repo.FindActiveByChannel(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "live" {
		t.Errorf("Expected live call, got %s", got.ID)
	}

	active, err := repo.ListActive(ctx)
	if err != nil || len(active) != 1 {
		t.Errorf("Expected one active call, got %d (%v)", len(active), err)
	}
}

func TestChannelAdminUpsert(t *testing.T) {
	db := openTestDB(t)
	repo := NewChannelRepository(db)
	ctx := context.Background()

	ch := &model.Channel{Title: "Standup"}
	if err := repo.Create(ctx, ch); err != nil {
		t.Fatal(err)
	}
	if err := repo.GrantAdmin(ctx, &model.ChannelAdmin{UserID: 2, ChannelID: ch.ID}); err != nil {
		t.Fatal(err)
	}
	if err := repo.GrantAdmin(ctx, &model.ChannelAdmin{UserID: 2, ChannelID: ch.ID, CanManageCall: true}); err != nil {
		t.Fatal(err)
	}

	admin, err := repo.FindAdmin(ctx, 2, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !admin.CanManageCall {
		t.Error("Second grant should replace the rights")
	}
	if _, err := repo.FindAdmin(ctx, 3, ch.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}

	if err := repo.SetInviteLink(ctx, ch.ID, "https://call.example.com/join/+x"); err != nil {
		t.Fatal(err)
	}
	got, err := repo.FindByID(ctx, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.InviteLink != "https://call.example.com/join/+x" {
		t.Errorf("Invite link not stored: %q", got.InviteLink)
	}
}

func TestWebhookFindByChannelSkipsDisabled(t *testing.T) {
	db := openTestDB(t)
	repo := NewWebhookRepository(db)
	ctx := context.Background()

	repo.Create(ctx, &model.Webhook{ChannelID: 1, URL: "http://a", Enabled: true})
	repo.Create(ctx, &model.Webhook{ChannelID: 2, URL: "http://b", Enabled: true})
	disabled := &model.Webhook{ChannelID: 1, URL: "http://c", Enabled: true}
	repo.Create(ctx, disabled)
	db.Model(disabled).Update("enabled", false)

	list, err := repo.FindByChannel(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].URL != "http://a" {
		t.Errorf("Expected only the enabled hook of channel 1, got %+v", list)
	}
	all, _ := repo.ListByChannel(ctx, 1)
	if len(all) != 2 {
		t.Errorf("Expected two hooks listed, got %d", len(all))
	}
}
