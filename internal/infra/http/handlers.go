package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/infra/adapters/discord"
	"async-ask-bot/internal/infra/logging"
	"async-ask-bot/internal/infra/metrics"
)

const (
	// DebugToken is the correlation token of jobs created through /debug.
	DebugToken    = "DEBUG_TOKEN"
	defaultPrompt = "Hello"

	maxInteractionBody = 1 << 20
)

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	prompt := strings.TrimSpace(r.URL.Query().Get("prompt"))
	if prompt == "" {
		prompt = defaultPrompt
	}
	target := model.DeliveryTarget{
		Channel:   model.ChannelDebug,
		Address:   DebugToken,
		Requester: model.Identity{Name: "debug"},
	}
	job, err := s.intake.Submit(r.Context(), prompt, DebugToken, target)
	if err != nil {
		metrics.IncIntakeRejected("error")
		logging.With(r.Context(), s.log).Error().Err(err).Msg("debug trigger failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to create job"})
		return
	}
	metrics.IncIntakeAccepted(model.ChannelDebug)
	writeJSON(w, http.StatusOK, map[string]string{"status": "Debug triggered", "jobId": job.ID})
}

type jobResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Result    *string   `json:"result,omitempty"`
	Channel   string    `json:"channel"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.intake.Status(r.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "job not found"})
		return
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid job id"})
		return
	default:
		logging.With(logging.WithJobID(r.Context(), id), s.log).Error().Err(err).Msg("job lookup failed")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "storage unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{
		ID:        job.ID,
		Status:    string(job.Status),
		Result:    job.Result,
		Channel:   job.Target.Channel,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	})
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInteractionBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable body"})
		return
	}
	sig := r.Header.Get("X-Signature-Ed25519")
	ts := r.Header.Get("X-Signature-Timestamp")
	if err := s.verifier.Verify(sig, ts, body); err != nil {
		http.Error(w, "invalid request signature", http.StatusUnauthorized)
		return
	}

	var in discord.Interaction
	if err := json.Unmarshal(body, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid interaction"})
		return
	}

	switch in.Type {
	case discord.InteractionPing:
		writeJSON(w, http.StatusOK, discord.InteractionResponse{Type: discord.ResponsePong})
	case discord.InteractionApplicationCommand:
		writeJSON(w, http.StatusOK, s.handleCommand(r, in))
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unsupported interaction type"})
	}
}

func (s *Server) handleCommand(r *http.Request, in discord.Interaction) discord.InteractionResponse {
	tr := s.texts.For(in.Locale)
	ephemeral := func(text string) discord.InteractionResponse {
		return discord.InteractionResponse{
			Type: discord.ResponseChannelMessageWithSource,
			Data: &discord.ResponseData{Content: text, Flags: discord.FlagEphemeral},
		}
	}
	if in.Data.Name != discord.AskCommandName {
		return ephemeral(tr.T("unknown_command"))
	}

	user := in.Invoker()
	target := model.DeliveryTarget{
		Channel: model.ChannelDiscord,
		Address: in.Token,
		AckRef:  discord.OriginalMessage,
		Locale:  in.Locale,
		Requester: model.Identity{
			ID:        user.ID,
			Name:      user.DisplayName(),
			AvatarURL: user.AvatarURL(),
		},
	}
	ctx := logging.WithRequester(logging.WithChannel(r.Context(), model.ChannelDiscord), user.ID)
	job, err := s.intake.Submit(ctx, in.StringOption(discord.AskOptionName), in.Token, target)
	if err != nil {
		reason, text := "error", tr.T("ask_failed")
		switch {
		case errors.Is(err, domain.ErrRateLimited):
			reason, text = "rate_limited", tr.T("ask_rate_limited")
		case errors.Is(err, domain.ErrEmptyQuestion):
			reason, text = "empty", tr.T("ask_usage")
		}
		metrics.IncIntakeRejected(reason)
		logging.With(ctx, s.log).Warn().Err(err).Str("reason", reason).Msg("ask rejected")
		return ephemeral(text)
	}
	metrics.IncIntakeAccepted(model.ChannelDiscord)
	logging.With(logging.WithJobID(ctx, job.ID), s.log).Info().Msg("ask accepted")
	return discord.InteractionResponse{Type: discord.ResponseDeferredChannelMessageWithSource}
}
