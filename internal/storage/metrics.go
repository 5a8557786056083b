package storage

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recentmessages_messages_appended",
		Help: "Total number of messages appended to storage",
	}, []string{"db"})

	messagesStored = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "recentmessages_messages_stored",
		Help: "Number of messages currently stored in storage",
	}, []string{"db"})

	messagesVacuumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recentmessages_messages_vacuumed",
		Help: "Total number of messages removed by the vacuum runner",
	}, []string{"db"})

	vacuumRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recentmessages_message_vacuum_runs",
		Help: "Total number of per-channel vacuum passes started",
	}, []string{"db"})

	dbConnectionsInUse = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "recentmessages_db_pool_connections_in_use",
		Help: "Number of database connections currently in use",
	}, []string{"db"})

	dbConnectionsMax = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "recentmessages_db_pool_connections_max",
		Help: "Configured maximum size of the database connection pool",
	}, []string{"db"})

	dbRetrievalTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "recentmessages_db_pool_retrieval_time_seconds",
		Help: "Time taken to retrieve a DB connection from the pool",
	}, []string{"db"})
)

func init() {
	prometheus.MustRegister(
		messagesAppended,
		messagesStored,
		messagesVacuumed,
		vacuumRuns,
		dbConnectionsInUse,
		dbConnectionsMax,
		dbRetrievalTime,
	)
}
