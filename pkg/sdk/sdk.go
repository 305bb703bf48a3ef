// Package sdk defines the §6.1 host-provided capability interface and the
// §6.2 plugin callback interfaces that the Router, LinkWizard and channel
// implementations are built against. The concrete host runtime is an
// external collaborator (out of scope per §1); this package only pins the
// contract.
package sdk

import (
	"time"

	"github.com/google/uuid"

	"github.com/racecore/overlay-nm/pkg/channel"
)

// Status is the PLUGIN_OK / PLUGIN_ERROR / PLUGIN_FATAL return contract of
// every callback in §6.2.
type Status int

// Recognized plugin callback statuses.
const (
	PluginOK Status = iota
	PluginError
	PluginFatal
)

// SdkStatus is the status field of an SdkResponse.
type SdkStatus int

// Recognized SDK response statuses.
const (
	SdkOK SdkStatus = iota
	SdkInvalidArgument
	SdkPluginMissing
	SdkQueueFull
)

// Handle is an opaque, host-minted correlation id. Per §9's Open Questions
// note, handles must never be assumed unique across plugin lifetimes and
// should only ever be looked up by exact key.
type Handle uint64

// NullHandle is returned by calls that could not be dispatched.
const NullHandle Handle = 0

// SdkResponse wraps the result of any outbound host call.
type SdkResponse struct {
	Status           SdkStatus
	Handle           Handle
	QueueUtilization float64
}

// PackageStatus is reported via onPackageStatusChanged.
type PackageStatus int

// Recognized package statuses.
const (
	PackageUndef PackageStatus = iota
	PackageSent
	PackageFailedGeneric
	PackageReceived
)

// MessageStatus is reported via onMessageStatusChanged (the coalesced,
// per-clear-message aggregate of §4.1/§7).
type MessageStatus int

// Recognized message statuses.
const (
	MsgUndef MessageStatus = iota
	MsgSent
	MsgFailed
)

// LinkStatus is reported via onLinkStatusChanged.
type LinkStatus int

// Recognized link statuses.
const (
	LinkDestroyed LinkStatus = iota
	LinkCreated
	LinkLoaded
)

// ConnStatus is reported via onConnectionStatusChanged.
type ConnStatus int

// Recognized connection statuses.
const (
	ConnectionClosed ConnStatus = iota
	ConnectionOpen
	ConnectionInitFailed
)

// ChannelStatusReport is reported via onChannelStatusChanged.
type ChannelStatusReport = channel.Status

// PluginConfig carries the directories the host hands to init (§6.2).
type PluginConfig struct {
	EtcDir     string
	LoggingDir string
	AuxDataDir string
	TmpDir     string
	PluginDir  string
}

// HostAPI is the capability surface the host provides to the plugin (§6.1).
// All methods may be called concurrently from the plugin; the host
// guarantees the returned SdkResponse is synchronous for the handle
// allocation even when the eventual status arrives later via the matching
// onXxxStatusChanged callback.
type HostAPI interface {
	GetActivePersona() (uuid.UUID, error)
	GetEntropy(n int) ([]byte, error)

	GetSupportedChannels() (map[string]channel.Properties, error)
	GetAllChannelProperties() ([]channel.Properties, error)
	GetChannelProperties(gid string) (channel.Properties, error)

	GetLinkProperties(linkID uuid.UUID) (channel.Link, error)
	GetLinksForChannel(gid string) ([]channel.Link, error)
	GetLinksForPersonas(personas []uuid.UUID, linkType channel.LinkType) ([]channel.Link, error)
	GetPersonasForLink(linkID uuid.UUID) ([]uuid.UUID, error)
	GetLinkForConnection(connID uuid.UUID) (channel.Link, error)

	ActivateChannel(gid string, role channel.Role, timeout time.Duration) SdkResponse
	DeactivateChannel(gid string, timeout time.Duration) SdkResponse

	CreateLink(gid string, personas []uuid.UUID, timeout time.Duration) SdkResponse
	CreateLinkFromAddress(gid, address string, personas []uuid.UUID, timeout time.Duration) SdkResponse
	LoadLinkAddress(gid, address string, personas []uuid.UUID, timeout time.Duration) SdkResponse
	LoadLinkAddresses(gid string, addresses []string, personas []uuid.UUID, timeout time.Duration) SdkResponse
	DestroyLink(linkID uuid.UUID, timeout time.Duration) SdkResponse

	GenerateLinkID(gid string) uuid.UUID
	GenerateConnectionID(linkID uuid.UUID) uuid.UUID

	OpenConnection(linkType channel.LinkType, linkID uuid.UUID, hints map[string]string, priority int, timeout time.Duration, blocking bool) SdkResponse
	CloseConnection(connID uuid.UUID, timeout time.Duration) SdkResponse

	SendEncryptedPackage(pkg []byte, connID uuid.UUID, batchID uuid.UUID, timeout time.Duration) Handle

	OnPackageStatusChanged(handle Handle, status PackageStatus, blocking bool) Status
	OnConnectionStatusChanged(handle Handle, connID uuid.UUID, status ConnStatus, props channel.Connection, blocking bool) Status
	OnLinkStatusChanged(handle Handle, linkID uuid.UUID, status LinkStatus, props channel.Link, blocking bool) Status
	OnChannelStatusChanged(handle Handle, gid string, status channel.Status, props channel.Properties, blocking bool) Status
	UpdateLinkProperties(linkID uuid.UUID, props channel.Link, blocking bool) Status
	OnMessageStatusChanged(handle Handle, status MessageStatus) Status
	OnPluginStatusChanged(status Status) Status

	PresentCleartextMessage(cm interface{}) Status
	DisplayInfoToUser(msg string, kind string) Status
	RequestPluginUserInput(key, prompt string, required bool) SdkResponse
	RequestCommonUserInput(key string) SdkResponse
	ReceiveEncPkg(pkg []byte, connIDs []uuid.UUID, blocking bool) Status

	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
}

// NetworkManagerPlugin is the §6.2 inbound surface a Network-Manager plugin
// implements.
type NetworkManagerPlugin interface {
	Init(cfg PluginConfig) Status
	Shutdown() Status
	ProcessClrMsg(handle Handle, cm interface{}) Status
	ProcessEncPkg(handle Handle, pkg []byte, connIDs []uuid.UUID) Status

	OnPackageStatusChanged(handle Handle, status PackageStatus) Status
	OnConnectionStatusChanged(handle Handle, connID uuid.UUID, status ConnStatus, props channel.Connection) Status
	OnLinkStatusChanged(handle Handle, linkID uuid.UUID, status LinkStatus, props channel.Link) Status
	OnChannelStatusChanged(handle Handle, gid string, status channel.Status, props channel.Properties) Status
}

// CommsPlugin is the §6.2 inbound surface a Comms plugin implements.
type CommsPlugin interface {
	Init(cfg PluginConfig) Status
	Shutdown() Status

	SendPackage(handle Handle, connID uuid.UUID, pkg []byte, timeout time.Duration) Status
	OpenConnection(handle Handle, linkType channel.LinkType, linkID uuid.UUID, hints map[string]string) Status
	CloseConnection(handle Handle, connID uuid.UUID) Status

	CreateLink(handle Handle, gid string, personas []uuid.UUID) Status
	CreateLinkFromAddress(handle Handle, gid, address string, personas []uuid.UUID) Status
	LoadLinkAddress(handle Handle, gid, address string, personas []uuid.UUID) Status
	LoadLinkAddresses(handle Handle, gid string, addresses []string, personas []uuid.UUID) Status
	DestroyLink(handle Handle, linkID uuid.UUID) Status

	ActivateChannel(handle Handle, gid string, role channel.Role) Status
	DeactivateChannel(handle Handle, gid string) Status

	// FlushChannel is unsupported by both concrete channels (§9 Open
	// Question); implementations must return PluginError.
	FlushChannel(handle Handle, gid string, batchID uuid.UUID, actions []string) Status

	OnUserInputReceived(handle Handle, answered bool, response string) Status
	OnUserAcknowledgementReceived(handle Handle) Status
}
