//go:build windows

package hook

import (
	"fmt"
	"log"
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"turbofire/internal/input"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procGetMessage          = user32.NewProc("GetMessageW")
	procTranslateMessage    = user32.NewProc("TranslateMessage")
	procDispatchMessage     = user32.NewProc("DispatchMessageW")
	procPostThreadMessage   = user32.NewProc("PostThreadMessageW")
	kernel32                = windows.NewLazySystemDLL("kernel32.dll")
	procGetModuleHandle     = kernel32.NewProc("GetModuleHandleW")
)

const (
	WH_KEYBOARD_LL = 13
	WH_MOUSE_LL    = 14
	WM_QUIT        = 0x0012
	WM_KEYDOWN     = 0x0100
	WM_KEYUP       = 0x0101
	WM_SYSKEYDOWN  = 0x0104
	WM_SYSKEYUP    = 0x0105

	WM_LBUTTONDOWN = 0x0201
	WM_LBUTTONUP   = 0x0202
	WM_RBUTTONDOWN = 0x0204
	WM_RBUTTONUP   = 0x0205
	WM_MBUTTONDOWN = 0x0207
	WM_MBUTTONUP   = 0x0208

	LLKHF_INJECTED = 0x10
	LLMHF_INJECTED = 0x01
)

type KBDLLHOOKSTRUCT struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type MSLLHOOKSTRUCT struct {
	Point       struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type platformState struct {
	threadID uint32
	exited   chan struct{}
}

// The LL hook callbacks carry no context pointer, so the active manager is
// kept in package state. Only one Manager may be started at a time.
var (
	instanceManager *Manager
	keyboardHook    uintptr
	mouseHook       uintptr
)

func (m *Manager) startPlatform() error {
	instanceManager = m
	ready := make(chan error, 1)
	m.platform.exited = make(chan struct{})

	// Hooks must be registered in the same thread that runs the message loop
	go func() {
		defer close(m.platform.exited)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		m.platform.threadID = windows.GetCurrentThreadId()
		hMod, _, _ := procGetModuleHandle.Call(0)

		var err error
		keyboardHook, _, err = procSetWindowsHookEx.Call(
			WH_KEYBOARD_LL,
			syscall.NewCallback(keyboardHookPtr),
			hMod,
			0,
		)
		if keyboardHook == 0 {
			ready <- fmt.Errorf("set keyboard hook: %w", err)
			return
		}

		mouseHook, _, err = procSetWindowsHookEx.Call(
			WH_MOUSE_LL,
			syscall.NewCallback(mouseHookPtr),
			hMod,
			0,
		)
		if mouseHook == 0 {
			procUnhookWindowsHookEx.Call(keyboardHook)
			ready <- fmt.Errorf("set mouse hook: %w", err)
			return
		}

		log.Println("Hook: Windows global hooks started.")
		ready <- nil

		var msg struct {
			Hwnd    syscall.Handle
			Message uint32
			Wparam  uintptr
			Lparam  uintptr
			Time    uint32
			Pt      struct{ X, Y int32 }
		}

		for {
			ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			if int32(ret) <= 0 {
				break
			}
			procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
			procDispatchMessage.Call(uintptr(unsafe.Pointer(&msg)))
		}

		procUnhookWindowsHookEx.Call(keyboardHook)
		procUnhookWindowsHookEx.Call(mouseHook)
		log.Println("Hook: Windows global hooks removed.")
	}()

	return <-ready
}

func (m *Manager) stopPlatform() {
	if m.platform.threadID != 0 {
		procPostThreadMessage.Call(uintptr(m.platform.threadID), WM_QUIT, 0, 0)
	}
	<-m.platform.exited
}

// The callbacks must return quickly: Windows silently drops slow LL hooks.
func keyboardHookPtr(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == 0 {
		kbd := (*KBDLLHOOKSTRUCT)(unsafe.Pointer(lParam))
		if kbd.Flags&LLKHF_INJECTED == 0 {
			if in, ok := input.FromVirtualKey(uint16(kbd.VkCode)); ok && in.Kind == input.Keyboard {
				switch wParam {
				case WM_KEYDOWN, WM_SYSKEYDOWN:
					instanceManager.UpdateState(in, true)
				case WM_KEYUP, WM_SYSKEYUP:
					instanceManager.UpdateState(in, false)
				}
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(keyboardHook, uintptr(nCode), wParam, lParam)
	return ret
}

func mouseHookPtr(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == 0 {
		ms := (*MSLLHOOKSTRUCT)(unsafe.Pointer(lParam))
		if ms.Flags&LLMHF_INJECTED == 0 {
			var btn string
			var isDown bool

			switch wParam {
			case WM_LBUTTONDOWN:
				btn, isDown = input.LButton, true
			case WM_LBUTTONUP:
				btn, isDown = input.LButton, false
			case WM_RBUTTONDOWN:
				btn, isDown = input.RButton, true
			case WM_RBUTTONUP:
				btn, isDown = input.RButton, false
			case WM_MBUTTONDOWN:
				btn, isDown = input.MButton, true
			case WM_MBUTTONUP:
				btn, isDown = input.MButton, false
			}

			if btn != "" {
				instanceManager.UpdateState(input.Button(btn), isDown)
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(mouseHook, uintptr(nCode), wParam, lParam)
	return ret
}
