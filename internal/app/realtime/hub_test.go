package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sams-http-service/internal/domain/events"
	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/domain/services"
	"sams-http-service/internal/error/code"
)

type fakeOccupancy struct {
	sites map[uint]services.SiteOccupancy
}

func newFakeOccupancy(ids ...uint) *fakeOccupancy {
	f := &fakeOccupancy{sites: make(map[uint]services.SiteOccupancy)}
	for _, id := range ids {
		f.sites[id] = services.SiteOccupancy{SiteID: id, SiteName: "site-" + strconv.Itoa(int(id)), Total: int64(id)}
	}
	return f
}

func (f *fakeOccupancy) OccupancyOf(_ context.Context, siteID uint) (*services.SiteOccupancy, error) {
	s, ok := f.sites[siteID]
	if !ok {
		return nil, code.New(code.ErrSiteNotFound, "")
	}
	return &s, nil
}

func (f *fakeOccupancy) OccupancyOfAll(ctx context.Context) ([]services.SiteOccupancy, error) {
	ids := make([]uint, 0, len(f.sites))
	for id := range f.sites {
		ids = append(ids, id)
	}
	return f.OccupancyOfSites(ctx, ids)
}

func (f *fakeOccupancy) OccupancyOfSites(_ context.Context, ids []uint) ([]services.SiteOccupancy, error) {
	out := []services.SiteOccupancy{}
	for _, id := range ids {
		if s, ok := f.sites[id]; ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out, nil
}

var identities = map[string]models.Identity{
	"admin":   {UserID: 1, Username: "admin", Role: models.RoleAdmin},
	"op1":     {UserID: 2, Username: "op1", Role: models.RoleOperator, SiteIDs: []uint{1}},
	"op2":     {UserID: 3, Username: "op2", Role: models.RoleOperator, SiteIDs: []uint{2}},
	"client1": {UserID: 4, Username: "client1", Role: models.RoleClient, SiteIDs: []uint{1}},
}

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var site *uint
		if s := r.URL.Query().Get("site"); s != "" {
			id, _ := strconv.Atoi(s)
			v := uint(id)
			site = &v
		}
		_ = hub.Serve(w, r, identities[r.URL.Query().Get("as")], site)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	assert.Error(t, err, "unexpected frame: %s", data)
}

func snapshotSites(t *testing.T, f Frame) []uint {
	t.Helper()
	require.Equal(t, FrameOccupancyUpdate, f.Type)
	list, ok := f.Data.([]interface{})
	require.True(t, ok, "snapshot is a list")
	ids := make([]uint, 0, len(list))
	for _, item := range list {
		ids = append(ids, uint(item.(map[string]interface{})["site_id"].(float64)))
	}
	return ids
}

func startHub(t *testing.T, cfg Config) (*Hub, *events.Bus) {
	hub := NewHub(newFakeOccupancy(1, 2), cfg, zap.NewNop())
	bus := events.NewBus(nil)
	hub.SubscribeTo(bus)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, bus
}

func TestHub_SnapshotOnConnect(t *testing.T) {
	hub, _ := startHub(t, Config{Heartbeat: time.Minute})
	srv := newTestServer(t, hub)

	assert.Equal(t, []uint{1, 2}, snapshotSites(t, readFrame(t, dial(t, srv, "as=admin"))))
	assert.Equal(t, []uint{1}, snapshotSites(t, readFrame(t, dial(t, srv, "as=op1"))))

	single := readFrame(t, dial(t, srv, "as=op1&site=1"))
	require.Equal(t, FrameOccupancyUpdate, single.Type)
	require.NotNil(t, single.Site)
	assert.Equal(t, uint(1), *single.Site)
	assert.EqualValues(t, 1, single.Data.(map[string]interface{})["site_id"])

	denied := dial(t, srv, "as=op1&site=2")
	assert.Equal(t, FrameError, readFrame(t, denied).Type)
	assert.Equal(t, []uint{1}, snapshotSites(t, readFrame(t, denied)))
}

func TestHub_RequestFrames(t *testing.T) {
	hub, _ := startHub(t, Config{Heartbeat: time.Minute})
	conn := dial(t, newTestServer(t, hub), "as=op1")
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(Request{Type: RequestPing}))
	assert.Equal(t, FramePong, readFrame(t, conn).Type)

	site := uint(2)
	require.NoError(t, conn.WriteJSON(Request{Type: RequestGetOccupancy, Site: &site}))
	assert.Equal(t, FrameError, readFrame(t, conn).Type)

	site = 1
	require.NoError(t, conn.WriteJSON(Request{Type: RequestGetOccupancy, Site: &site}))
	f := readFrame(t, conn)
	assert.Equal(t, FrameOccupancyUpdate, f.Type)
	assert.Equal(t, uint(1), *f.Site)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	assert.Equal(t, FrameError, readFrame(t, conn).Type)
}

func TestHub_FanOutRespectsAccess(t *testing.T) {
	hub, bus := startHub(t, Config{Heartbeat: time.Minute})
	srv := newTestServer(t, hub)

	conns := map[string]*websocket.Conn{}
	for _, name := range []string{"admin", "op1", "op2", "client1"} {
		conns[name] = dial(t, srv, "as="+name)
		readFrame(t, conns[name])
	}

	site1 := uint(1)
	bus.Publish(events.Event{
		Type:   events.AlertCreated,
		SiteID: &site1,
		Alert:  &models.Alert{Type: models.AlertTypeWatchlistMatch, Severity: models.SeverityCritical, SiteID: &site1},
	})
	for _, name := range []string{"admin", "op1"} {
		f := readFrame(t, conns[name])
		assert.Equal(t, FrameAlert, f.Type, name)
		assert.Equal(t, models.SeverityCritical, f.Alert.Severity)
	}

	bus.Publish(events.Event{
		Type:   events.EntryCreated,
		SiteID: &site1,
		Entry:  &models.Entry{SiteID: 1, Type: models.EntryTypeVehicle, Status: models.EntryStatusActive},
	})
	for _, name := range []string{"admin", "op1", "client1"} {
		f := readFrame(t, conns[name])
		assert.Equal(t, FrameEntryCreated, f.Type, name)
		assert.Equal(t, uint(1), *f.Site)
		occ := readFrame(t, conns[name])
		assert.Equal(t, FrameOccupancyUpdate, occ.Type, name)
		assert.Equal(t, uint(1), *occ.Site)
	}

	bus.Publish(events.Event{
		Type:      events.EmergencyActivated,
		Emergency: &models.EmergencyMode{IsActive: true, Reason: "fire drill"},
	})
	for _, name := range []string{"admin", "op1", "op2"} {
		f := readFrame(t, conns[name])
		assert.Equal(t, FrameEmergencyMode, f.Type, name)
		require.NotNil(t, f.Active)
		assert.True(t, *f.Active)
	}

	// op2 没有站点1的权限，client1 不是值守角色
	expectSilence(t, conns["client1"])
	expectSilence(t, conns["op2"])
}

func TestHub_HeartbeatEvictsSilentConnections(t *testing.T) {
	hub, _ := startHub(t, Config{Heartbeat: 40 * time.Millisecond})
	srv := newTestServer(t, hub)

	responsive := dial(t, srv, "as=op1")
	readFrame(t, responsive)
	go func() {
		for {
			// 读取时自动回复ping
			if _, _, err := responsive.ReadMessage(); err != nil {
				return
			}
		}
	}()

	silent := dial(t, srv, "as=op2")
	readFrame(t, silent)

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, hub.Count())
}

func TestHub_FullQueueEvictsOnlyThatConnection(t *testing.T) {
	hub := NewHub(newFakeOccupancy(1), Config{SendBuffer: 1}, zap.NewNop())
	slow := &Client{id: "slow", identity: identities["admin"], send: make(chan []byte, 1), hub: hub}
	fast := &Client{id: "fast", identity: identities["admin"], send: make(chan []byte, 8), hub: hub}
	hub.register(slow)
	hub.register(fast)

	all := func(*Client) bool { return true }
	hub.broadcast(Frame{Type: FramePong}, all)
	hub.broadcast(Frame{Type: FramePong}, all)

	assert.Equal(t, 1, hub.Count())
	assert.Len(t, fast.send, 2)

	// 已移除的连接不再接收
	assert.NotPanics(t, func() { hub.sendTo(slow, Frame{Type: FramePong}) })
}

func TestAccessRules(t *testing.T) {
	site1, site2 := uint(1), uint(2)
	admin := identities["admin"]
	op1 := identities["op1"]
	client1 := identities["client1"]
	allSitesOperator := models.Identity{UserID: 9, Role: models.RoleOperator, AllSites: true}

	siteAlert := &models.Alert{SiteID: &site1}
	otherAlert := &models.Alert{SiteID: &site2}
	globalAlert := &models.Alert{}

	assert.True(t, canSeeAlert(admin, otherAlert))
	assert.True(t, canSeeAlert(op1, siteAlert))
	assert.False(t, canSeeAlert(op1, otherAlert))
	assert.True(t, canSeeAlert(op1, globalAlert))
	assert.False(t, canSeeAlert(client1, siteAlert))
	assert.True(t, canSeeAlert(allSitesOperator, otherAlert))

	assert.True(t, canSeeEmergency(op1, &models.EmergencyMode{}))
	assert.False(t, canSeeEmergency(op1, &models.EmergencyMode{SiteID: &site2}))
	assert.False(t, canSeeEmergency(client1, &models.EmergencyMode{SiteID: &site1}))

	assert.True(t, canSeeEntry(client1, 1))
	assert.False(t, canSeeEntry(client1, 2))
	assert.True(t, canSeeEntry(admin, 2))

	assert.True(t, canSeeOccupancy(op1, nil, 1))
	assert.False(t, canSeeOccupancy(op1, nil, 2))
	assert.True(t, canSeeOccupancy(op1, &site2, 2))
	assert.True(t, canSeeOccupancy(allSitesOperator, nil, 2))
}

func TestHub_BulkExitSendsEntriesThenOneOccupancy(t *testing.T) {
	hub, bus := startHub(t, Config{Heartbeat: time.Minute})
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "as=op1")
	readFrame(t, conn)

	site1 := uint(1)
	for _, id := range []uint{10, 11} {
		entry := &models.Entry{SiteID: 1, Type: models.EntryTypeVehicle, Status: models.EntryStatusEmergencyExit}
		entry.ID = id
		bus.Publish(events.Event{Type: events.EntryExited, SiteID: &site1, Entry: entry, Bulk: true})
	}
	bus.Publish(events.Event{Type: events.OccupancyChanged, SiteID: &site1, SiteIDs: []uint{1}})

	for _, id := range []uint{10, 11} {
		f := readFrame(t, conn)
		assert.Equal(t, FrameEntryUpdated, f.Type)
		assert.Equal(t, id, f.Entry.ID)
	}
	occ := readFrame(t, conn)
	assert.Equal(t, FrameOccupancyUpdate, occ.Type)
	expectSilence(t, conn)
}
