package icomfort

import "time"

// Production endpoints. Each operation has its own base URL; they are
// configurable so tests and regional deployments can redirect them.
const (
	defaultAuthenticateURL = "https://ic3messaging.myicomfort.com/v1/mobile/authenticate"
	defaultLoginURL        = "https://ic3messaging.myicomfort.com/v2/user?action=login"
	defaultRetrieveURL     = "https://icretrieve.myicomfort.com/v1/messages/retrieve"
	defaultRequestDataURL  = "https://icrequestdata.myicomfort.com/v1/messages/requestData"
	defaultPublishURL      = "https://icpublish.myicomfort.com/v1/messages/publish"

	defaultApplicationID = "mapp079372367644467046827098891"
)

// Tuning defaults. The manual-mode schedule base is a firmware constant
// observed on current controllers; it is configurable in case other firmware
// revisions shift the reserved block.
const (
	defaultPollInterval      = 10 * time.Second
	defaultRequestTimeout    = 15 * time.Second
	defaultInitializeTimeout = 30 * time.Second
	defaultRefreshBuffer     = 300 * time.Second
	defaultFailureThreshold  = 5
	defaultMessageBatch      = 10
	defaultManualBase        = 16
	certAttempts             = 5
)

// Config carries everything a Client needs. Zero values fall back to the
// production defaults above; only Email and Password are mandatory.
type Config struct {
	Email    string
	Password string

	// ClientID is the stable per-install identifier sent as SenderID on every
	// request-data and command message. Generated once at install time by the
	// caller and reused across restarts.
	ClientID string

	ApplicationID string

	AuthenticateURL string
	LoginURL        string
	RetrieveURL     string
	RequestDataURL  string
	PublishURL      string

	PollInterval      time.Duration
	RequestTimeout    time.Duration
	InitializeTimeout time.Duration
	RefreshBuffer     time.Duration

	// FailureThreshold is the number of consecutive non-unauthorized cycle
	// failures that forces a reconnect.
	FailureThreshold int

	// MessageBatch bounds how many queued messages one poll cycle retrieves.
	MessageBatch int

	// ManualScheduleBase is the first schedule id of the reserved manual-mode
	// block; the slot for zone i is ManualScheduleBase + i.
	ManualScheduleBase int
}

// withDefaults returns a copy with unset fields filled in.
func (c Config) withDefaults() Config {
	if c.ApplicationID == "" {
		c.ApplicationID = defaultApplicationID
	}
	if c.AuthenticateURL == "" {
		c.AuthenticateURL = defaultAuthenticateURL
	}
	if c.LoginURL == "" {
		c.LoginURL = defaultLoginURL
	}
	if c.RetrieveURL == "" {
		c.RetrieveURL = defaultRetrieveURL
	}
	if c.RequestDataURL == "" {
		c.RequestDataURL = defaultRequestDataURL
	}
	if c.PublishURL == "" {
		c.PublishURL = defaultPublishURL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.InitializeTimeout <= 0 {
		c.InitializeTimeout = defaultInitializeTimeout
	}
	if c.RefreshBuffer <= 0 {
		c.RefreshBuffer = defaultRefreshBuffer
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.MessageBatch <= 0 {
		c.MessageBatch = defaultMessageBatch
	}
	if c.ManualScheduleBase <= 0 {
		c.ManualScheduleBase = defaultManualBase
	}
	return c
}

// PumpStats receives observability callbacks from the message pump. All
// methods must be safe for concurrent use; implementations should never
// block.
type PumpStats interface {
	Cycle()
	CycleFailure()
	Reconnect()
	MessagesRouted(n int)
	ZoneSample(zoneID string, temperatureF, humidity float64)
}

// noopStats is used when no collector is installed.
type noopStats struct{}

func (noopStats) Cycle()                              {}
func (noopStats) CycleFailure()                       {}
func (noopStats) Reconnect()                          {}
func (noopStats) MessagesRouted(int)                  {}
func (noopStats) ZoneSample(string, float64, float64) {}
