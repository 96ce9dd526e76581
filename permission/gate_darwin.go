//go:build darwin

package permission

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework ApplicationServices -framework AVFoundation -framework Foundation

#include <CoreGraphics/CoreGraphics.h>
#include <ApplicationServices/ApplicationServices.h>
#import <AVFoundation/AVFoundation.h>

static int vc_checkScreen(void) {
	return CGPreflightScreenCaptureAccess() ? 1 : 0;
}

static void vc_requestScreen(void) {
	CGRequestScreenCaptureAccess();
}

static int vc_checkAccessibility(void) {
	return AXIsProcessTrusted() ? 1 : 0;
}

static void vc_requestAccessibility(void) {
	const void *keys[] = { kAXTrustedCheckOptionPrompt };
	const void *values[] = { kCFBooleanTrue };
	CFDictionaryRef opts = CFDictionaryCreate(NULL, keys, values, 1,
		&kCFTypeDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);
	AXIsProcessTrustedWithOptions(opts);
	CFRelease(opts);
}

static int vc_checkMicrophone(void) {
	return [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio] == AVAuthorizationStatusAuthorized ? 1 : 0;
}

static void vc_requestMicrophone(void) {
	[AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import "os/exec"

func systemCheck(k Kind) bool {
	switch k {
	case InputMonitoring:
		return C.vc_checkAccessibility() == 1
	case ScreenCapture:
		return C.vc_checkScreen() == 1
	case Microphone:
		return C.vc_checkMicrophone() == 1
	}
	return false
}

func systemRequest(k Kind) {
	switch k {
	case InputMonitoring:
		C.vc_requestAccessibility()
	case ScreenCapture:
		C.vc_requestScreen()
	case Microphone:
		C.vc_requestMicrophone()
	}
}

func openSettings(k Kind) error {
	pane := "x-apple.systempreferences:com.apple.preference.security"
	switch k {
	case InputMonitoring:
		pane = "x-apple.systempreferences:com.apple.preference.security?Privacy_Accessibility"
	case ScreenCapture:
		pane = "x-apple.systempreferences:com.apple.preference.security?Privacy_ScreenCapture"
	case Microphone:
		pane = "x-apple.systempreferences:com.apple.preference.security?Privacy_Microphone"
	}
	return exec.Command("open", pane).Start()
}
