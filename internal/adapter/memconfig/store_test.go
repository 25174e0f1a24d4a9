package memconfig_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/neomorfeo/tenantgrid/internal/adapter/memconfig"
)

type recordingListener struct {
	events []string
}

func (l *recordingListener) OnConfigurationAdded(path string, data []byte) {
	l.events = append(l.events, "added:"+path+"="+string(data))
}

func (l *recordingListener) OnConfigurationUpdated(path string, data []byte) {
	l.events = append(l.events, "updated:"+path+"="+string(data))
}

func (l *recordingListener) OnConfigurationDeleted(path string) {
	l.events = append(l.events, "deleted:"+path)
}

func TestStore_PutAndGet(t *testing.T) {
	store := memconfig.New()

	store.Put("/tenants/acme/config/engine", []byte("pool: 5"))

	data, ok := store.Get("/tenants/acme/config/engine")
	if !ok {
		t.Fatal("expected node to exist")
	}
	if string(data) != "pool: 5" {
		t.Errorf("data = %q, want %q", data, "pool: 5")
	}
}

func TestStore_List_DirectChildrenSorted(t *testing.T) {
	store := memconfig.New()

	store.Put("/tenants/zeta/config", []byte("z"))
	store.Put("/tenants/acme/config/engine", []byte("a"))
	store.Put("/tenants/acme/config/schema", []byte("b"))
	store.Put("/tenants/beta", []byte("c"))
	store.Put("/other/ignored", []byte("d"))

	children, err := store.List(context.Background(), "/tenants")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"acme", "beta", "zeta"}
	if !reflect.DeepEqual(children, want) {
		t.Errorf("children = %v, want %v", children, want)
	}
}

func TestStore_List_EmptyPrefix(t *testing.T) {
	store := memconfig.New()

	children, err := store.List(context.Background(), "/tenants")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(children) != 0 {
		t.Errorf("children = %v, want empty", children)
	}
}

func TestStore_Subscribe_NotifiesAddUpdateDelete(t *testing.T) {
	store := memconfig.New()
	listener := &recordingListener{}
	cancel := store.Subscribe(listener)
	defer cancel()

	store.Put("/tenants/acme", []byte("v1"))
	store.Put("/tenants/acme", []byte("v2"))
	store.Delete("/tenants/acme")

	want := []string{
		"added:/tenants/acme=v1",
		"updated:/tenants/acme=v2",
		"deleted:/tenants/acme",
	}
	if !reflect.DeepEqual(listener.events, want) {
		t.Errorf("events = %v, want %v", listener.events, want)
	}
}

func TestStore_Subscribe_CancelStopsNotifications(t *testing.T) {
	store := memconfig.New()
	listener := &recordingListener{}
	cancel := store.Subscribe(listener)

	store.Put("/tenants/acme", []byte("v1"))
	cancel()
	cancel() // second cancel must be a no-op
	store.Put("/tenants/beta", []byte("v1"))

	if len(listener.events) != 1 {
		t.Errorf("events = %v, want exactly one", listener.events)
	}
}

func TestStore_Delete_AbsentPathIsSilent(t *testing.T) {
	store := memconfig.New()
	listener := &recordingListener{}
	cancel := store.Subscribe(listener)
	defer cancel()

	store.Delete("/tenants/missing")

	if len(listener.events) != 0 {
		t.Errorf("events = %v, want none", listener.events)
	}
}

func TestStore_WaitUntilReady(t *testing.T) {
	store := memconfig.New()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := store.WaitUntilReady(ctx); err == nil {
		t.Error("WaitUntilReady before MarkReady should time out")
	}

	store.MarkReady()
	store.MarkReady() // idempotent

	if err := store.WaitUntilReady(context.Background()); err != nil {
		t.Errorf("WaitUntilReady after MarkReady: %v", err)
	}
}
