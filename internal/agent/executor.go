package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/arclight-c2/arclight/internal/models"
	"github.com/arclight-c2/arclight/internal/server/dto"
	"github.com/arclight-c2/arclight/pkg/logger"
	"github.com/shirou/gopsutil/v3/disk"
	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// Executor runs dispatched tasks and produces the result the server expects.
// Execution failures are reported as results, never as errors: a task that
// cannot run still produces a failed result for the next beacon.
type Executor struct {
	logger *logger.CanonicalLogger
}

func NewExecutor(log *logger.CanonicalLogger) *Executor {
	return &Executor{logger: log}
}

// Execute runs one task instruction to completion and returns its result.
func (e *Executor) Execute(ctx context.Context, instr dto.TaskInstruction) models.TaskResult {
	result := models.TaskResult{
		TaskID: instr.TaskID,
		Status: models.TaskStatusFailed,
	}

	switch instr.Type {
	case models.TaskTypeExecuteCommand:
		e.executeCommand(ctx, instr, &result)
	case models.TaskTypeCollectProcesses,
		models.TaskTypeCollectConnections,
		models.TaskTypeCollectDiskUsage:
		e.collectTelemetry(instr, &result)
	default:
		result.ErrorOutput = fmt.Sprintf("unsupported task type: %s", instr.Type)
	}

	e.logger.WithTaskID(instr.TaskID).Info("task executed",
		zap.String("type", instr.Type),
		zap.String(logger.FieldStatus, result.Status),
	)
	return result
}

func (e *Executor) executeCommand(ctx context.Context, instr dto.TaskInstruction, result *models.TaskResult) {
	command, _ := instr.Payload["command"].(string)
	if command == "" {
		result.ErrorOutput = "no command provided in payload"
		return
	}

	timeout := time.Duration(instr.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = models.DefaultTaskTimeoutSeconds * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result.Output = stdout.String()
	result.ErrorOutput = stderr.String()

	if runCtx.Err() == context.DeadlineExceeded {
		result.Status = models.TaskStatusTimedOut
		result.ErrorOutput = "command timed out"
		return
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			result.ErrorOutput = fmt.Sprintf("command execution failed: %v", err)
			return
		}
	}

	result.ExitCode = &exitCode
	if exitCode == 0 {
		result.Status = models.TaskStatusCompleted
	}
}

func (e *Executor) collectTelemetry(instr dto.TaskInstruction, result *models.TaskResult) {
	var (
		collected interface{}
		err       error
	)

	switch instr.Type {
	case models.TaskTypeCollectProcesses:
		collected, err = collectProcessList(instr.Payload)
	case models.TaskTypeCollectConnections:
		collected, err = collectConnections(instr.Payload)
	case models.TaskTypeCollectDiskUsage:
		collected, err = collectDiskUsage()
	}
	if err != nil {
		result.ErrorOutput = fmt.Sprintf("telemetry collection failed: %v", err)
		return
	}

	encoded, err := json.Marshal(collected)
	if err != nil {
		result.ErrorOutput = fmt.Sprintf("failed to encode telemetry: %v", err)
		return
	}

	exitCode := 0
	result.Output = string(encoded)
	result.ExitCode = &exitCode
	result.Status = models.TaskStatusCompleted
}

type processEntry struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float32 `json:"memory_percent"`
	Cmdline       string  `json:"cmdline,omitempty"`
}

func collectProcessList(payload map[string]interface{}) (interface{}, error) {
	includeCmdline, _ := payload["include_cmdline"].(bool)

	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	entries := make([]processEntry, 0, len(procs))
	for _, p := range procs {
		entry := processEntry{PID: p.Pid}
		// Individual probes can fail for processes we cannot inspect;
		// those fields stay zero.
		entry.Name, _ = p.Name()
		entry.CPUPercent, _ = p.CPUPercent()
		entry.MemoryPercent, _ = p.MemoryPercent()
		if includeCmdline {
			entry.Cmdline, _ = p.Cmdline()
		}
		entries = append(entries, entry)
	}

	return map[string]interface{}{"processes": entries}, nil
}

type connectionEntry struct {
	FD     uint32 `json:"fd"`
	Family uint32 `json:"family"`
	Type   uint32 `json:"type"`
	Laddr  string `json:"laddr,omitempty"`
	Raddr  string `json:"raddr,omitempty"`
	Status string `json:"status"`
}

func collectConnections(payload map[string]interface{}) (interface{}, error) {
	includeForeign, _ := payload["include_foreign_addresses"].(bool)

	conns, err := gopsnet.Connections("all")
	if err != nil {
		return nil, err
	}

	entries := make([]connectionEntry, 0, len(conns))
	for _, conn := range conns {
		entry := connectionEntry{
			FD:     conn.Fd,
			Family: conn.Family,
			Type:   conn.Type,
			Status: conn.Status,
		}
		if conn.Laddr.IP != "" {
			entry.Laddr = fmt.Sprintf("%s:%d", conn.Laddr.IP, conn.Laddr.Port)
		}
		if includeForeign && conn.Raddr.IP != "" {
			entry.Raddr = fmt.Sprintf("%s:%d", conn.Raddr.IP, conn.Raddr.Port)
		}
		entries = append(entries, entry)
	}

	return map[string]interface{}{"connections": entries}, nil
}

type diskEntry struct {
	Device     string  `json:"device"`
	Mountpoint string  `json:"mountpoint"`
	Fstype     string  `json:"fstype"`
	Total      uint64  `json:"total"`
	Used       uint64  `json:"used"`
	Free       uint64  `json:"free"`
	Percent    float64 `json:"percent"`
}

func collectDiskUsage() (interface{}, error) {
	partitions, err := disk.Partitions(false)
	if err != nil {
		return nil, err
	}

	entries := make([]diskEntry, 0, len(partitions))
	for _, partition := range partitions {
		usage, err := disk.Usage(partition.Mountpoint)
		if err != nil {
			continue
		}
		entries = append(entries, diskEntry{
			Device:     partition.Device,
			Mountpoint: partition.Mountpoint,
			Fstype:     partition.Fstype,
			Total:      usage.Total,
			Used:       usage.Used,
			Free:       usage.Free,
			Percent:    usage.UsedPercent,
		})
	}

	return map[string]interface{}{"disk_usage": entries}, nil
}
