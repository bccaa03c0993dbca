// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/warden-fleet/warden/lib/agent"
	"github.com/warden-fleet/warden/lib/codec"
	"github.com/warden-fleet/warden/lib/transfer"
	"github.com/warden-fleet/warden/lib/wire"
)

// handleChannel serves request/response exchanges on one channel until
// the peer disconnects or the stream becomes unusable. Operation
// failures (package manager error, bad chunk) are reported inside the
// typed response and the channel stays up; only envelope-level damage
// (undecodable frame, write failure) tears it down.
func (s *server) handleChannel(ctx context.Context, conn *wire.Conn, logger *slog.Logger) {
	for {
		var request agent.Request
		if err := conn.Receive(ctx, &request); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			logger.Warn("receive failed", "error", err)
			return
		}

		response := s.dispatch(ctx, &request, logger)
		if err := conn.Send(ctx, response); err != nil {
			logger.Warn("send failed", "method", request.Method, "error", err)
			return
		}
	}
}

func (s *server) dispatch(ctx context.Context, request *agent.Request, logger *slog.Logger) *agent.Response {
	logger = logger.With("method", request.Method)

	var result any
	switch request.Method {
	case agent.MethodInstallPackage:
		var req agent.InstallPackageRequest
		if err := codec.Unmarshal(request.Payload, &req); err != nil {
			return badPayload(request.Method, err)
		}
		result = s.installPackage(ctx, &req, logger)
	case agent.MethodUninstallPackage:
		var req agent.UninstallPackageRequest
		if err := codec.Unmarshal(request.Payload, &req); err != nil {
			return badPayload(request.Method, err)
		}
		result = s.uninstallPackage(ctx, &req, logger)
	case agent.MethodStartService:
		var req agent.StartServiceRequest
		if err := codec.Unmarshal(request.Payload, &req); err != nil {
			return badPayload(request.Method, err)
		}
		result = s.startService(ctx, &req, logger)
	case agent.MethodStopService:
		var req agent.StopServiceRequest
		if err := codec.Unmarshal(request.Payload, &req); err != nil {
			return badPayload(request.Method, err)
		}
		result = s.stopService(ctx, &req, logger)
	case agent.MethodPutFile:
		var req agent.PutFileRequest
		if err := codec.Unmarshal(request.Payload, &req); err != nil {
			return badPayload(request.Method, err)
		}
		result = s.putFile(&req, logger)
	case agent.MethodPutFileChunk:
		var req agent.PutFileChunkRequest
		if err := codec.Unmarshal(request.Payload, &req); err != nil {
			return badPayload(request.Method, err)
		}
		result = s.putFileChunk(&req, logger)
	case agent.MethodFetchFile:
		var req agent.FetchFileRequest
		if err := codec.Unmarshal(request.Payload, &req); err != nil {
			return badPayload(request.Method, err)
		}
		result = s.fetchFile(&req, logger)
	default:
		return &agent.Response{
			Error: fmt.Sprintf("unknown method %q", request.Method),
		}
	}

	data, err := codec.Marshal(result)
	if err != nil {
		logger.Error("encoding response failed", "error", err)
		return &agent.Response{Error: "internal: encoding response"}
	}
	return &agent.Response{OK: true, Data: data}
}

func badPayload(method string, err error) *agent.Response {
	return &agent.Response{
		Error: fmt.Sprintf("decoding %s payload: %v", method, err),
	}
}

func (s *server) installPackage(ctx context.Context, req *agent.InstallPackageRequest, logger *slog.Logger) *agent.InstallPackageResponse {
	if s.packages == nil {
		return &agent.InstallPackageResponse{
			Status: agent.StatusError,
			Detail: "no supported package manager on this host",
		}
	}
	if s.packages.IsInstalled(ctx, req.Name) {
		return &agent.InstallPackageResponse{Status: agent.StatusAlreadyInstalled}
	}
	if err := s.packages.Install(ctx, req.Name); err != nil {
		logger.Warn("package install failed", "package", req.Name, "error", err)
		return &agent.InstallPackageResponse{Status: agent.StatusError, Detail: err.Error()}
	}
	logger.Info("package installed", "package", req.Name, "manager", s.packages.Name())
	return &agent.InstallPackageResponse{Status: agent.StatusSuccess}
}

func (s *server) uninstallPackage(ctx context.Context, req *agent.UninstallPackageRequest, logger *slog.Logger) *agent.UninstallPackageResponse {
	if s.packages == nil {
		return &agent.UninstallPackageResponse{
			Status: agent.StatusError,
			Detail: "no supported package manager on this host",
		}
	}
	if err := s.packages.Uninstall(ctx, req.Name); err != nil {
		logger.Warn("package uninstall failed", "package", req.Name, "error", err)
		return &agent.UninstallPackageResponse{Status: agent.StatusError, Detail: err.Error()}
	}
	logger.Info("package uninstalled", "package", req.Name)
	return &agent.UninstallPackageResponse{Status: agent.StatusSuccess}
}

func (s *server) startService(ctx context.Context, req *agent.StartServiceRequest, logger *slog.Logger) *agent.StartServiceResponse {
	restarted, err := s.lifecycle.Start(ctx, req.Wrapper)
	if err != nil {
		logger.Warn("service start failed", "error", err)
		return &agent.StartServiceResponse{Status: agent.StatusError, Detail: err.Error()}
	}
	status := agent.StatusSuccess
	if restarted {
		status = agent.StatusRestarted
	}
	logger.Info("service started", "restarted", restarted)
	return &agent.StartServiceResponse{Status: status}
}

func (s *server) stopService(ctx context.Context, req *agent.StopServiceRequest, logger *slog.Logger) *agent.StopServiceResponse {
	restarted, err := s.lifecycle.Stop(ctx, req.Service)
	if err != nil {
		logger.Warn("service stop failed", "service", req.Service, "error", err)
		return &agent.StopServiceResponse{Status: agent.StatusError, Detail: err.Error()}
	}
	status := agent.StatusSuccess
	if restarted {
		status = agent.StatusRestarted
	}
	logger.Info("service stopped", "service", req.Service)
	return &agent.StopServiceResponse{Status: status}
}

func (s *server) putFile(req *agent.PutFileRequest, logger *slog.Logger) *agent.PutFileResponse {
	if err := transfer.WriteFile(&req.File, req.TargetPath, fs.FileMode(req.TargetPerms)); err != nil {
		logger.Warn("put file failed", "target", req.TargetPath, "error", err)
		return &agent.PutFileResponse{Status: agent.StatusError, Detail: err.Error()}
	}
	logger.Info("file written", "target", req.TargetPath, "size", len(req.File.Data))
	return &agent.PutFileResponse{Status: agent.StatusSuccess}
}

func (s *server) putFileChunk(req *agent.PutFileChunkRequest, logger *slog.Logger) *agent.PutFileChunkResponse {
	chunkID := req.Chunk.ChunkID

	if len(req.FileHash) != len(transfer.Key{}) {
		return &agent.PutFileChunkResponse{
			Status:  agent.StatusError,
			ChunkID: chunkID,
			Detail:  fmt.Sprintf("file hash must be %d bytes, got %d", len(transfer.Key{}), len(req.FileHash)),
		}
	}
	var key transfer.Key
	copy(key[:], req.FileHash)

	outcome, err := s.registry.Add(key, req.TargetPath, fs.FileMode(req.TargetPerms), req.Chunk)
	if err != nil {
		logger.Warn("chunk rejected", "key", key.String(), "chunk", chunkID, "error", err)
		return &agent.PutFileChunkResponse{Status: agent.StatusError, ChunkID: chunkID, Detail: err.Error()}
	}

	switch outcome.Status {
	case transfer.StatusProgress:
		return &agent.PutFileChunkResponse{Status: agent.StatusProgress, ChunkID: chunkID, SeenCount: outcome.SeenCount}
	case transfer.StatusDuplicate:
		logger.Info("duplicate chunk ignored", "key", key.String(), "chunk", chunkID)
		return &agent.PutFileChunkResponse{Status: agent.StatusDuplicate, ChunkID: chunkID, SeenCount: outcome.SeenCount}
	}

	// Final chunk: reassemble, verify the hash, and write to disk.
	assembled, err := transfer.Assemble(key, outcome.Completed.Chunks)
	if err != nil {
		logger.Warn("reassembly failed", "key", key.String(), "error", err)
		return &agent.PutFileChunkResponse{Status: agent.StatusError, ChunkID: chunkID, Detail: err.Error()}
	}
	file := &transfer.CompressedFile{
		Filename:         req.Chunk.Filename,
		Compression:      req.Compression,
		UncompressedSize: req.UncompressedSize,
		Data:             assembled,
	}
	if err := transfer.WriteFile(file, outcome.Completed.TargetPath, outcome.Completed.TargetPerms); err != nil {
		logger.Warn("writing completed transfer failed",
			"key", key.String(), "target", outcome.Completed.TargetPath, "error", err)
		return &agent.PutFileChunkResponse{Status: agent.StatusError, ChunkID: chunkID, Detail: err.Error()}
	}
	logger.Info("transfer complete",
		"key", key.String(), "target", outcome.Completed.TargetPath,
		"chunks", len(outcome.Completed.Chunks), "size", len(assembled))
	return &agent.PutFileChunkResponse{Status: agent.StatusComplete, ChunkID: chunkID}
}

func (s *server) fetchFile(req *agent.FetchFileRequest, logger *slog.Logger) *agent.FetchFileResponse {
	file, err := transfer.CompressPath(req.HostSrcPath, transfer.CompressionZstd)
	if err != nil {
		logger.Warn("fetch file failed", "path", req.HostSrcPath, "error", err)
		return &agent.FetchFileResponse{Status: agent.StatusError, Detail: err.Error()}
	}
	if req.Filename != "" {
		file.Filename = filepath.Base(req.Filename)
	}
	logger.Info("file fetched", "path", req.HostSrcPath, "compressed_size", len(file.Data))
	return &agent.FetchFileResponse{Status: agent.StatusSuccess, File: file}
}
