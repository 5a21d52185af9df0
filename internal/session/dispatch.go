package session

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/paircast/paircast/internal/domain"
)

// dispatch handles one inbound relay envelope on the event loop.
func (c *Controller) dispatch(env domain.Envelope) {
	switch env.Type {
	case domain.TypePartnerFound:
		c.handlePartnerFound(env)
	case domain.TypePartnerLeft:
		c.handlePartnerLeft()
	case domain.TypeSignal:
		c.handleSignal(env)
	case domain.TypeReceiveMessage:
		c.handleChat(env)
	case domain.TypeError:
		log.Warn().Str("module", "session").Str("error", env.Error).Msg("relay error")
	default:
		log.Warn().Str("module", "session").Str("type", env.Type).Msg("unknown envelope")
	}
}

func (c *Controller) handlePartnerFound(env domain.Envelope) {
	if c.sess != nil {
		// Duplicate or stale pairing; we already have a partner.
		log.Warn().Str("module", "session").Str("room", string(env.Room)).Msg("partner_found while paired")
		return
	}
	if c.State() == domain.StateIdle && !c.acquiring {
		// The user stopped searching; decline the pairing so the
		// partner is not left hanging.
		_ = c.conn.Send(domain.Envelope{Type: domain.TypeLeaveRoom, Room: env.Room})
		return
	}
	c.cancelRematch()

	if c.acquiring {
		// Media is still being acquired; park the pairing until done.
		c.pendingFound = &env
		return
	}
	if !c.captured && c.State() != domain.StateMatchmaking {
		// Paired before the settling delay elapsed. Capture was
		// already released, so re-acquire and resume from there.
		c.pendingFound = &env
		c.beginAcquire()
		return
	}

	role := domain.RoleResponder
	if env.Initiator {
		role = domain.RoleInitiator
	}
	c.startSession(env.Room, role)
}

func (c *Controller) handlePartnerLeft() {
	if c.sess == nil {
		return
	}
	log.Info().Str("module", "session").Str("room", string(c.sess.Room)).Msg("partner left")
	c.teardown(byPartner)
}

func (c *Controller) handleSignal(env domain.Envelope) {
	if c.sess != nil && env.Room != c.sess.Room {
		// Stale message from a just-ended session racing relay delivery.
		log.Debug().Str("module", "session").Str("room", string(env.Room)).Msg("dropping stale signal")
		return
	}

	switch {
	case env.Description != nil && env.Description.Kind == "offer":
		c.handleOffer(env)
	case env.Description != nil && env.Description.Kind == "answer":
		c.handleAnswer(env)
	case env.Candidate != nil:
		c.handleCandidate(env)
	default:
		log.Warn().Str("module", "session").Msg("signal without description or candidate")
	}
}

func (c *Controller) handleOffer(env domain.Envelope) {
	if c.sess == nil {
		if c.State() != domain.StateMatchmaking {
			log.Debug().Str("module", "session").Str("room", string(env.Room)).Msg("dropping offer, not searching")
			return
		}
		// Some relays skip partner_found for the responder; the offer
		// itself is the pairing.
		c.startSession(env.Room, domain.RoleResponder)
		if c.sess == nil {
			return // engine creation failed
		}
	}

	if c.engine == nil {
		if !c.createEngine(c.sess.Room, domain.RoleResponder) {
			return
		}
	}
	answer, err := c.engine.ApplyRemoteOffer(env.Description.SessionDescription())
	if err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("dropping offer")
		return
	}
	if err := c.conn.Send(domain.Envelope{
		Type:        domain.TypeSignal,
		Room:        c.sess.Room,
		Description: domain.DescriptionFrom(answer),
	}); err != nil {
		log.Error().Err(err).Str("module", "session").Msg("answer send")
	}
}

func (c *Controller) handleAnswer(env domain.Envelope) {
	if c.engine == nil {
		log.Error().Str("module", "session").Str("room", string(env.Room)).Msg("answer with no active engine")
		c.reportError(ErrNoActiveEngine)
		c.cancelRematch()
		c.pendingFound = nil
		c.teardown(byFailure)
		return
	}
	if err := c.engine.ApplyRemoteAnswer(env.Description.SessionDescription()); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("dropping answer")
	}
}

func (c *Controller) handleCandidate(env domain.Envelope) {
	if c.engine != nil {
		c.engine.AddRemoteCandidate(*env.Candidate)
		return
	}
	// Engine not created yet; buffer so nothing is dropped. The
	// engine has its own pre-description queue, this one covers the
	// pre-creation boundary.
	if c.earlyRoom != "" && c.earlyRoom != env.Room {
		c.early = nil
	}
	c.earlyRoom = env.Room
	c.early = append(c.early, *env.Candidate)
}

func (c *Controller) handleChat(env domain.Envelope) {
	if c.sess == nil || (env.Room != "" && env.Room != c.sess.Room) {
		return
	}
	msg, err := domain.NewChatMessage(domain.AuthorRemote, env.Text, env.SentAt)
	if err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("dropping chat message")
		return
	}
	c.transcript = append(c.transcript, *msg)
	if c.OnChatMessage != nil {
		c.OnChatMessage(*msg)
	}
}

// startSession creates the session and its engine for a fresh
// pairing; the initiator side sends the opening offer.
func (c *Controller) startSession(room domain.RoomID, role domain.Role) {
	c.sess = &domain.Session{Room: room, Role: role}
	if !c.createEngine(room, role) {
		return
	}
	c.setState(domain.StateNegotiating)

	if role == domain.RoleInitiator {
		offer, err := c.engine.StartOffer()
		if err != nil {
			log.Error().Err(err).Str("module", "session").Msg("start offer")
			c.teardown(byFailure)
			return
		}
		if err := c.conn.Send(domain.Envelope{
			Type:        domain.TypeSignal,
			Room:        room,
			Description: domain.DescriptionFrom(offer),
		}); err != nil {
			log.Error().Err(err).Str("module", "session").Msg("offer send")
			c.teardown(byFailure)
		}
	}
}

func (c *Controller) createEngine(room domain.RoomID, role domain.Role) bool {
	hooks := EngineHooks{
		Candidate: func(cand domain.Candidate) {
			// Trickle straight out; ordering within a room follows
			// gathering order.
			if err := c.conn.Send(domain.Envelope{
				Type:      domain.TypeSignal,
				Room:      room,
				Candidate: &cand,
			}); err != nil {
				log.Warn().Err(err).Str("module", "session").Msg("candidate send")
			}
		},
		RemoteTrack: func(track *webrtc.TrackRemote) {
			c.post(func() { c.onRemoteTrack(room, track) })
		},
		Closed: func() {
			c.post(func() { c.onEngineClosed(room) })
		},
	}

	eng, err := c.engines(room, role, c.tracks, hooks)
	if err != nil {
		log.Error().Err(err).Str("module", "session").Str("room", string(room)).Msg("engine create")
		c.reportError(err)
		c.teardown(byFailure)
		return false
	}
	c.engine = eng
	c.flushEarlyCandidates(room)
	return true
}

func (c *Controller) flushEarlyCandidates(room domain.RoomID) {
	if len(c.early) == 0 {
		return
	}
	if c.earlyRoom == room {
		for _, cand := range c.early {
			c.engine.AddRemoteCandidate(cand)
		}
	}
	c.early = nil
	c.earlyRoom = ""
}

// onRemoteTrack: media arrival is the success signal; there is no
// separate connected acknowledgement.
func (c *Controller) onRemoteTrack(room domain.RoomID, track *webrtc.TrackRemote) {
	if c.sess == nil || c.sess.Room != room {
		return
	}
	if c.State() == domain.StateNegotiating {
		c.setState(domain.StateConnected)
		c.rematchDelay = c.opts.RematchDelay
	}
	if c.OnRemoteTrack != nil {
		c.OnRemoteTrack(track)
	}
}

// onEngineClosed: a terminal transport failure mid-session is treated
// exactly like partner departure.
func (c *Controller) onEngineClosed(room domain.RoomID) {
	if c.sess == nil || c.sess.Room != room {
		return
	}
	log.Warn().Str("module", "session").Str("room", string(room)).Msg("transport failed")
	c.teardown(byPartner)
}
