// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/conceptweave/services/queryprog/exec"
	storage "github.com/AleutianAI/conceptweave/services/queryprog/storage/badger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// wsMessage is one frame of the step stream.
type wsMessage struct {
	Type      string          `json:"type"` // "session_created", "step", "done", "error"
	SessionID string          `json:"session_id,omitempty"`
	Step      *exec.StepEntry `json:"step,omitempty"`
	Graph     *graphPayload   `json:"graph,omitempty"`
	Error     string          `json:"error,omitempty"`
	Failed    int             `json:"failed_statement,omitempty"`
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("failed to write websocket JSON", "error", err)
	}
	return err
}

// StreamExecution runs programs over a websocket, pushing one frame per
// folded statement as the working graph accumulates.
//
// Description:
//
//	The client sends a run request (same body as POST /programs/run) per
//	message. Each fold produces a "step" frame carrying the step entry,
//	in execution order; the stream ends with "done" (plus the final
//	graph) or "error" (plus the failed statement index). The connection
//	stays open for further runs.
func StreamExecution(executor *exec.Executor, store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade websocket", "error", err)
			return
		}
		defer ws.Close()
		slog.Info("step-stream client connected")

		for {
			var req runRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("step-stream client disconnected", "error", err.Error())
				return
			}

			program, err := resolveProgram(req, store)
			if err != nil {
				if sendJSON(ws, wsMessage{Type: "error", Error: err.Error()}) != nil {
					return
				}
				continue
			}

			session := exec.NewSession()
			if sendJSON(ws, wsMessage{Type: "session_created", SessionID: session.ID()}) != nil {
				return
			}

			// The executor invokes the observer synchronously after each
			// fold, so frames arrive in statement order.
			var writeErr error
			obs := exec.StepObserverFunc(func(entry exec.StepEntry) {
				if writeErr != nil {
					return
				}
				e := entry
				writeErr = sendJSON(ws, wsMessage{Type: "step", SessionID: session.ID(), Step: &e})
			})

			runErr := executor.Run(c.Request.Context(), program, session, obs)
			if writeErr != nil {
				return
			}

			if runErr != nil {
				msg := wsMessage{Type: "error", SessionID: session.ID(), Error: runErr.Error()}
				var sErr *exec.StatementError
				if errors.As(runErr, &sErr) {
					msg.Failed = sErr.Index
					g := snapshotGraph(session)
					msg.Graph = &g
				}
				if sendJSON(ws, msg) != nil {
					return
				}
				continue
			}

			g := snapshotGraph(session)
			if sendJSON(ws, wsMessage{Type: "done", SessionID: session.ID(), Graph: &g}) != nil {
				return
			}
		}
	}
}
