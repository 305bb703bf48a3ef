package linkwizard

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racecore/overlay-nm/pkg/channel"
	"github.com/racecore/overlay-nm/pkg/persona"
	"github.com/racecore/overlay-nm/pkg/sdk"
)

type fakeKinds struct {
	kinds map[uuid.UUID]persona.Kind
}

func (f fakeKinds) Get(id uuid.UUID) (*persona.Persona, bool) {
	k, ok := f.kinds[id]
	if !ok {
		return nil, false
	}
	return &persona.Persona{UUID: id, Kind: k}, true
}

type capturedSend struct {
	peer uuid.UUID
	body string
}

type fakeSender struct {
	sends   []capturedSend
	succeed bool
}

func (f *fakeSender) SendLinksMessage(peer uuid.UUID, body string) bool {
	f.sends = append(f.sends, capturedSend{peer, body})
	return f.succeed
}

func (f *fakeSender) lastBody(t *testing.T) envelope {
	t.Helper()
	require.NotEmpty(t, f.sends)
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(f.sends[len(f.sends)-1].body), &env))
	return env
}

type fakeHost struct {
	createResp sdk.SdkResponse
	loadResp   sdk.SdkResponse
	created    []string
	loaded     []string
}

func (f *fakeHost) CreateLink(gid string, personas []uuid.UUID, timeout time.Duration) sdk.SdkResponse {
	f.created = append(f.created, gid)
	return f.createResp
}

func (f *fakeHost) LoadLinkAddress(gid, address string, personas []uuid.UUID, timeout time.Duration) sdk.SdkResponse {
	f.loaded = append(f.loaded, gid)
	return f.loadResp
}

func directChannel(gid string, side channel.LinkSide, dir channel.LinkDirection, maxLinks int) *channel.Channel {
	role := channel.Role{Name: "r", LinkSide: side, MechanicalTags: map[string]struct{}{}}
	return &channel.Channel{
		Properties: channel.Properties{
			GID:            gid,
			ConnectionType: channel.ConnDirect,
			LinkDirection:  dir,
			Roles:          []channel.Role{role},
			MaxLinks:       maxLinks,
		},
		CurrentRole: &role,
		Status:      channel.ChannelEnabled,
	}
}

func TestObtainQueuesWhenChannelsUnknown(t *testing.T) {
	self, peer := uuid.New(), uuid.New()
	reg := channel.NewRegistry()
	sender := &fakeSender{succeed: true}
	host := &fakeHost{}
	w := New(self, reg, fakeKinds{kinds: map[uuid.UUID]persona.Kind{}}, sender, host)

	ok := w.Obtain(peer, channel.LinkSend)
	assert.True(t, ok)
	require.Len(t, sender.sends, 1)
	env := sender.lastBody(t)
	require.NotNil(t, env.GetSupportedChannels)
	assert.True(t, *env.GetSupportedChannels)
}

func TestObtainReturnsFalseWhenSendFails(t *testing.T) {
	self, peer := uuid.New(), uuid.New()
	reg := channel.NewRegistry()
	sender := &fakeSender{succeed: false}
	host := &fakeHost{}
	w := New(self, reg, fakeKinds{kinds: map[uuid.UUID]persona.Kind{}}, sender, host)

	ok := w.Obtain(peer, channel.LinkSend)
	assert.False(t, ok)
}

func TestObtainCreateSideAfterSupportedChannels(t *testing.T) {
	self, peer := uuid.New(), uuid.New()
	reg := channel.NewRegistry()
	ch := directChannel("gidA", channel.SideCreator, channel.CreatorToLoader, 0)
	reg.AddChannel(ch)

	sender := &fakeSender{succeed: true}
	host := &fakeHost{createResp: sdk.SdkResponse{Status: sdk.SdkOK, Handle: 42}}
	kinds := fakeKinds{kinds: map[uuid.UUID]persona.Kind{peer: persona.KindServer}}
	w := New(self, reg, kinds, sender, host)

	require.True(t, w.Obtain(peer, channel.LinkSend))

	body, err := json.Marshal(envelope{SupportedChannels: map[string]int{"gidA": int(channel.SideLoader)}})
	require.NoError(t, err)
	require.NoError(t, w.HandleMessage(peer, string(body)))

	require.Len(t, host.created, 1)
	assert.Equal(t, "gidA", host.created[0])
}

func TestOnLinkCreatedSendsRequestLoadLinkAddress(t *testing.T) {
	self, peer := uuid.New(), uuid.New()
	reg := channel.NewRegistry()
	sender := &fakeSender{succeed: true}
	host := &fakeHost{}
	w := New(self, reg, fakeKinds{kinds: map[uuid.UUID]persona.Kind{}}, sender, host)

	w.mu.Lock()
	w.pendingCreate[7] = []uuid.UUID{peer}
	w.mu.Unlock()

	w.OnLinkStatusChanged(7, sdk.LinkCreated, channel.Link{ChannelGID: "gidA", Address: "1.2.3.4:9000"})

	env := sender.lastBody(t)
	require.NotNil(t, env.RequestLoadLink)
	assert.Equal(t, "gidA", env.RequestLoadLink.ChannelGID)
	assert.Contains(t, env.RequestLoadLink.Personas, self.String())
	assert.Contains(t, env.RequestLoadLink.Personas, peer.String())
}

func TestOnRequestLoadLinkRemovesSelfAndCallsHost(t *testing.T) {
	self, peer := uuid.New(), uuid.New()
	reg := channel.NewRegistry()
	sender := &fakeSender{succeed: true}
	host := &fakeHost{loadResp: sdk.SdkResponse{Status: sdk.SdkOK, Handle: 9}}
	w := New(self, reg, fakeKinds{kinds: map[uuid.UUID]persona.Kind{}}, sender, host)

	body, err := json.Marshal(envelope{RequestLoadLink: &loadLinkAddressBody{
		ChannelGID: "gidA",
		Address:    "addr",
		Personas:   []string{self.String(), peer.String()},
	}})
	require.NoError(t, err)
	require.NoError(t, w.HandleMessage(peer, string(body)))

	require.Len(t, host.loaded, 1)
	assert.Equal(t, "gidA", host.loaded[0])

	w.mu.Lock()
	loadPersonas, ok := w.pendingLoad[9]
	w.mu.Unlock()
	assert.True(t, ok)
	assert.Equal(t, []uuid.UUID{peer}, loadPersonas, "self must be removed from the loaded personas")
}

func TestOnLinkLoadedClearsPendingLoad(t *testing.T) {
	self := uuid.New()
	reg := channel.NewRegistry()
	w := New(self, reg, fakeKinds{kinds: map[uuid.UUID]persona.Kind{}}, &fakeSender{succeed: true}, &fakeHost{})

	w.mu.Lock()
	w.pendingLoad[3] = []uuid.UUID{uuid.New()}
	w.mu.Unlock()

	w.OnLinkStatusChanged(3, sdk.LinkLoaded, channel.Link{})

	w.mu.Lock()
	_, ok := w.pendingLoad[3]
	w.mu.Unlock()
	assert.False(t, ok)
}
