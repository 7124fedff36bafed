package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// PIDFunc reports the PID of the supervised server, or 0 when none is running.
type PIDFunc func() int

// ProcessCollector exports resource usage of the supervised server. It reads
// the process on every scrape, so nothing is sampled while no one is scraping.
type ProcessCollector struct {
	pid PIDFunc

	cpuPercent *prometheus.Desc
	memoryRSS  *prometheus.Desc
	memoryVMS  *prometheus.Desc
	numThreads *prometheus.Desc
}

func NewProcessCollector(pid PIDFunc) *ProcessCollector {
	return &ProcessCollector{
		pid: pid,
		cpuPercent: prometheus.NewDesc("srvkeeper_server_cpu_percent",
			"CPU usage of the supervised server in percent.", nil, nil),
		memoryRSS: prometheus.NewDesc("srvkeeper_server_memory_rss_bytes",
			"Resident memory of the supervised server.", nil, nil),
		memoryVMS: prometheus.NewDesc("srvkeeper_server_memory_vms_bytes",
			"Virtual memory of the supervised server.", nil, nil),
		numThreads: prometheus.NewDesc("srvkeeper_server_threads",
			"Number of threads of the supervised server.", nil, nil),
	}
}

func (c *ProcessCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpuPercent
	ch <- c.memoryRSS
	ch <- c.memoryVMS
	ch <- c.numThreads
}

func (c *ProcessCollector) Collect(ch chan<- prometheus.Metric) {
	pid := c.pid()
	if pid <= 0 {
		return
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		slog.Debug("server process not readable", "pid", pid, "error", err)
		return
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.cpuPercent, prometheus.GaugeValue, cpu)
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.memoryRSS, prometheus.GaugeValue, float64(mem.RSS))
		ch <- prometheus.MustNewConstMetric(c.memoryVMS, prometheus.GaugeValue, float64(mem.VMS))
	}
	if n, err := proc.NumThreads(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.numThreads, prometheus.GaugeValue, float64(n))
	}
}
