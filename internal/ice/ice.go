// Package ice собирает и проверяет список ICE-серверов, которые клиент передаёт в RTCPeerConnection.
// В JSON webrtc.ICEServer сериализуется сам, в форме RTCIceServer.
package ice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

// Server — описание из конфигурации.
type Server struct {
	URLs       []string
	Username   string
	Credential string
}

// Build проверяет URL (stun:, stuns:, turn:, turns:) и требует учётные данные для TURN.
func Build(in []Server) ([]webrtc.ICEServer, error) {
	out := make([]webrtc.ICEServer, 0, len(in))
	for i, s := range in {
		srv := webrtc.ICEServer{Username: strings.TrimSpace(s.Username)}
		for _, raw := range s.URLs {
			if raw = strings.TrimSpace(raw); raw != "" {
				srv.URLs = append(srv.URLs, raw)
			}
		}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		if err := validate(srv); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		out = append(out, srv)
	}
	return out, nil
}

func validate(srv webrtc.ICEServer) error {
	if len(srv.URLs) == 0 {
		return errors.New("missing urls")
	}

	needCreds := false
	for _, raw := range srv.URLs {
		uri, err := stun.ParseURI(raw)
		if err != nil {
			return fmt.Errorf("parse %q: %w", raw, err)
		}
		if uri.Scheme == stun.SchemeTypeTURN || uri.Scheme == stun.SchemeTypeTURNS {
			needCreds = true
		}
	}

	if needCreds {
		if srv.Username == "" {
			return errors.New("turn urls require username")
		}
		if cred, ok := srv.Credential.(string); !ok || strings.TrimSpace(cred) == "" {
			return errors.New("turn urls require credential")
		}
	}
	return nil
}
