// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP surface for query programs:
// persistence CRUD, validation, block compilation, execution, replay, and
// the websocket step stream.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/conceptweave/services/queryprog/ast"
	"github.com/AleutianAI/conceptweave/services/queryprog/replay"
	"github.com/AleutianAI/conceptweave/services/queryprog/script"
	storage "github.com/AleutianAI/conceptweave/services/queryprog/storage/badger"
)

// RegisterValidations installs custom binding validators. Call once before
// the router starts handling requests.
func RegisterValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("definition_type", func(fl validator.FieldLevel) bool {
			switch replay.DefinitionType(fl.Field().String()) {
			case replay.DefinitionCypherScript, replay.DefinitionProgramJSON:
				return true
			}
			return false
		})
	}
}

type createProgramRequest struct {
	Name           string `json:"name"`
	DefinitionType string `json:"definition_type" binding:"required,definition_type"`
	Definition     string `json:"definition" binding:"required"`
}

// CreateProgram saves a definition as a new immutable version. The
// definition must decode to a structurally valid program; saving never
// mutates an existing version.
func CreateProgram(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createProgramRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		program, err := decodeStoredDefinition(req.DefinitionType, req.Definition)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if res := ast.Validate(program); !res.Valid {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":      "program failed validation",
				"validation": res,
			})
			return
		}

		rec, err := store.Put(storage.Record{
			Name:           req.Name,
			DefinitionType: req.DefinitionType,
			Definition:     req.Definition,
		})
		if err != nil {
			slog.Error("failed to save program", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save program"})
			return
		}
		c.JSON(http.StatusCreated, rec)
	}
}

// ListPrograms returns the latest version of every saved program.
func ListPrograms(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		recs, err := store.List()
		if err != nil {
			slog.Error("failed to list programs", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list programs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"programs": recs})
	}
}

// GetProgram returns one program: the latest version by default, or a
// specific one via the ?version= query parameter.
func GetProgram(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("programId")

		var (
			rec storage.Record
			err error
		)
		if vs := c.Query("version"); vs != "" {
			version, convErr := strconv.Atoi(vs)
			if convErr != nil || version < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "version must be a positive integer"})
				return
			}
			rec, err = store.GetVersion(id, version)
		} else {
			rec, err = store.Get(id)
		}

		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "program not found", "program_id": id})
			return
		}
		if err != nil {
			slog.Error("failed to load program", "program_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load program"})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// DeleteProgram removes every version of a program.
func DeleteProgram(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("programId")
		err := store.Delete(id)
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "program not found", "program_id": id})
			return
		}
		if err != nil {
			slog.Error("failed to delete program", "program_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete program"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_program_id": id})
	}
}

// decodeStoredDefinition lifts a persisted definition into a program.
func decodeStoredDefinition(defType, raw string) (*ast.Program, error) {
	switch replay.DefinitionType(defType) {
	case replay.DefinitionCypherScript:
		steps := script.Parse(raw)
		if len(steps) == 0 {
			return nil, replay.ErrEmptyDefinition
		}
		return script.ToProgram(steps), nil
	case replay.DefinitionProgramJSON:
		return ast.DecodeProgram([]byte(raw))
	default:
		return nil, replay.ErrUnknownDefinitionType
	}
}
