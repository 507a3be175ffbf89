package storage

import (
	"database/sql"

	"github.com/ernie/hostlog/internal/domain"
)

// Null scanner helpers

func scanNullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanServer scans a row selected with serverColumns
func scanServer(s scanner) (*domain.Server, error) {
	var srv domain.Server
	var logPath sql.NullString
	if err := s.Scan(&srv.ID, &srv.Name, &srv.Address, &logPath, &srv.CreatedAt, &srv.UpdatedAt); err != nil {
		return nil, err
	}
	srv.LogPath = scanNullStringValue(logPath)
	return &srv, nil
}
