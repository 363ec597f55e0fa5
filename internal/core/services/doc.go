// Package services implements the driving port interfaces.
//
// ChangeScheduler decides when a document is processed, EmbeddingCache
// keeps per-document vectors and serves similar pages, Answerer turns
// annotations into replies and SettingsService reads and writes
// configuration. Services depend only on driven ports.
package services
