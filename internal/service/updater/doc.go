// Package updater checks a release catalog for a newer version than the
// installed one and installs it.
//
// All files of the selected version are first downloaded next to their
// destinations and then moved into place in configuration order. The
// version marker is advanced only when every file was installed.
package updater
