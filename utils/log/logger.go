/*
   Copyright @ 2021 bocloud <fushaosong@beyondcent.com>.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package log

import (
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logPath = "/var/log/remotefs/bootstrap.log"

var (
	sugareLogger *zap.SugaredLogger
	atomicLevel  = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// logPath 日志文件路径
// maxSize 单个文件大小,MB
// maxBackups 保存的文件个数
// maxAge 保存的天数
// logInConsole 同时输出到控制台

func init() {
	hook := lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    30, // megabytes
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   false,
	}

	syncer := zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout), zapcore.AddSync(&hook))

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "line",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	if os.Getenv("DEBUG") != "" {
		atomicLevel.SetLevel(zap.DebugLevel)
	}
	core := zapcore.NewCore(
		encoder,
		syncer,
		atomicLevel,
	)

	log := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	sugareLogger = log.Sugar()
}

// SetDebug switches the level at runtime, used by the --debug flag
func SetDebug(debug bool) {
	if debug {
		atomicLevel.SetLevel(zap.DebugLevel)
		return
	}
	atomicLevel.SetLevel(zap.InfoLevel)
}

// Sync flushes buffered entries, call before the process exits
func Sync() {
	_ = sugareLogger.Sync()
}

func Debug(args ...interface{}) {
	sugareLogger.Debug(args...)
}

func Debugf(template string, args ...interface{}) {
	sugareLogger.Debugf(template, args...)
}

func Info(args ...interface{}) {
	sugareLogger.Info(args...)
}

func Infof(template string, args ...interface{}) {
	sugareLogger.Infof(template, args...)
}

func Warn(args ...interface{}) {
	sugareLogger.Warn(args...)
}

func Warnf(template string, args ...interface{}) {
	sugareLogger.Warnf(template, args...)
}

func Error(args ...interface{}) {
	sugareLogger.Error(args...)
}

func Errorf(template string, args ...interface{}) {
	sugareLogger.Errorf(template, args...)
}
