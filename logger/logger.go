// Copyright 2017-2019 Lei Ni (nilei81@gmail.com) and other Dragonboat authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Modified for simcheck: slog backend, package names.

/*
Package logger manages the per-package loggers used by simcheck.
*/
package logger

import (
	"sync"
)

// LogLevel is the log level defined in simcheck.
type LogLevel int

const (
	// CRITICAL is the CRITICAL log level
	CRITICAL LogLevel = iota - 1
	// ERROR is the ERROR log level
	ERROR
	// WARNING is the WARNING log level
	WARNING
	// INFO is the INFO log level
	INFO
	// DEBUG is the DEBUG log level
	DEBUG
)

// Factory is the factory method for creating logger used for the
// specified package.
type Factory func(pkgName string) ILogger

// ILogger is the interface implemented by loggers that can be used by
// simcheck. A custom implementation can be provided by wrapping another
// logging library and registering it with SetLoggerFactory.
type ILogger interface {
	SetLevel(LogLevel)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Panicf(format string, args ...interface{})
}

// SetLoggerFactory sets the factory function used to create ILogger instances.
func SetLoggerFactory(f Factory) {
	_loggers.mu.Lock()
	defer _loggers.mu.Unlock()
	if _loggers.loggerFactory != nil {
		panic("setting the logger factory again")
	}
	_loggers.loggerFactory = f
}

// GetLogger returns the logger for the specified package name. The most common
// use case for the returned logger is to set its log verbosity level.
func GetLogger(pkgName string) ILogger {
	_loggers.mu.Lock()
	defer _loggers.mu.Unlock()
	l, ok := _loggers.loggers[pkgName]
	if !ok {
		l = &simcheckLogger{pkgName: pkgName}
		_loggers.loggers[pkgName] = l
	}
	return l
}

// SetLevel sets the level of every logger created so far and of the loggers
// created afterwards.
func SetLevel(level LogLevel) {
	_loggers.mu.Lock()
	_loggers.level = &level
	all := make([]*simcheckLogger, 0, len(_loggers.loggers))
	for _, l := range _loggers.loggers {
		all = append(all, l)
	}
	_loggers.mu.Unlock()
	for _, l := range all {
		l.SetLevel(level)
	}
}

type simcheckLogger struct {
	mu      sync.Mutex
	logger  ILogger
	pkgName string
}

func (d *simcheckLogger) createILogger() ILogger {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.logger == nil {
		d.logger = _loggers.createILogger(d.pkgName)
	}
	return d.logger
}

func (d *simcheckLogger) SetLevel(l LogLevel) {
	d.createILogger().SetLevel(l)
}

func (d *simcheckLogger) Debugf(format string, args ...interface{}) {
	d.createILogger().Debugf(format, args...)
}

func (d *simcheckLogger) Infof(format string, args ...interface{}) {
	d.createILogger().Infof(format, args...)
}

func (d *simcheckLogger) Warningf(format string, args ...interface{}) {
	d.createILogger().Warningf(format, args...)
}

func (d *simcheckLogger) Errorf(format string, args ...interface{}) {
	d.createILogger().Errorf(format, args...)
}

func (d *simcheckLogger) Panicf(format string, args ...interface{}) {
	d.createILogger().Panicf(format, args...)
}

type sysLoggers struct {
	mu            sync.Mutex
	loggers       map[string]*simcheckLogger
	loggerFactory Factory
	level         *LogLevel
}

func (l *sysLoggers) createILogger(pkgName string) ILogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	var lg ILogger
	if l.loggerFactory == nil {
		lg = createDefaultILogger(pkgName)
	} else {
		lg = l.loggerFactory(pkgName)
	}
	if l.level != nil {
		lg.SetLevel(*l.level)
	}
	return lg
}

var _loggers = createSysLoggers()

func createSysLoggers() *sysLoggers {
	s := &sysLoggers{
		loggers: make(map[string]*simcheckLogger),
	}
	return s
}

func createDefaultILogger(pkgName string) ILogger {
	return CreateSlogLogger(pkgName)
}
