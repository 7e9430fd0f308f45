package router

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	cryptoRand "crypto/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/berkmancenter/equalpass/challenge"
	"github.com/berkmancenter/equalpass/config"
	"github.com/berkmancenter/equalpass/metrics"
	"github.com/berkmancenter/equalpass/verification"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

type Deps struct {
	Orchestrator *verification.Orchestrator
	Config       config.Config
	Logger       logrus.FieldLogger
	Metrics      *metrics.Recorder
	// LookupOrg names the network organization of an IP. Defaults to RDAP.
	LookupOrg func(ip string) (*string, error)
	// SigningKey signs verification receipts. Generated when nil.
	SigningKey *ecdsa.PrivateKey
	Clock      func() time.Time
}

type server struct {
	orchestrator *verification.Orchestrator
	challenges   *challenge.Service
	cfg          config.Config
	log          logrus.FieldLogger
	metrics      *metrics.Recorder
	lookupOrg    func(ip string) (*string, error)
	signingKey   *ecdsa.PrivateKey
	now          func() time.Time
}

func newServer(d Deps) (*server, error) {
	s := &server{
		orchestrator: d.Orchestrator,
		challenges:   d.Orchestrator.Challenges(),
		cfg:          d.Config,
		log:          d.Logger,
		metrics:      d.Metrics,
		lookupOrg:    d.LookupOrg,
		signingKey:   d.SigningKey,
		now:          d.Clock,
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.lookupOrg == nil {
		s.lookupOrg = lookupOrgByIP
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.signingKey == nil {
		key, err := createKeys()
		if err != nil {
			return nil, err
		}
		s.signingKey = key
	}
	return s, nil
}

func createKeys() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), cryptoRand.Reader)
}
