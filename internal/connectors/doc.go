// Package connectors holds the sources marginalia can watch. Each source
// implements the driven SourceEnumerator port and, where the platform
// allows it, a ChangeNotifier that wakes the scheduler early.
package connectors
